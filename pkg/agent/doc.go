// Package agent drives chat turns: it resolves the target conversation,
// anchors the user message in the tree, runs the tool-calling loop against
// a model provider and persists the assistant's answer.
//
// Turns on the same conversation are serialized through a per-conversation
// command queue lane; turns on different conversations run concurrently.
package agent
