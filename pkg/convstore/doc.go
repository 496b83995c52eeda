// Package convstore persists branchable conversation trees.
//
// Invariants:
//   - Messages form a forest rooted per conversation; a non-root message's
//     parent always resolves within the same conversation.
//   - Depth equals parent depth + 1, with roots at depth 0.
//   - Messages are append-only; records are replaced whole via
//     write-temp-then-rename so a crash never leaves a half-written log.
//   - Writes for the same conversation are serialized.
//
// Usage:
//
//	store, _ := convstore.NewJSONStore("/tmp/loom/conversations")
//	conv, _ := store.CreateConversation(ctx, "ide_helper", nil)
//	root, _ := store.AppendMessage(ctx, conv.ID, convstore.RoleUser, "hello", "", nil)
//	_, _ = store.AppendMessage(ctx, conv.ID, convstore.RoleAssistant, "hi", root.ID, nil)
package convstore
