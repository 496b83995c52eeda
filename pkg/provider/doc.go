// Package provider abstracts the LLM APIs the agent runtime can talk to.
//
// A Client performs one model call at a time: Complete blocks until the
// model finishes, CompleteStream additionally surfaces text deltas through a
// callback as they arrive. Both return the same *Completion, so callers that
// drive the tool-calling loop can treat streaming and blocking calls
// uniformly.
//
// Supported providers are "anthropic" and "openai". New selects one by name.
package provider
