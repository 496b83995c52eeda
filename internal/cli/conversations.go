package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Inspect and manage stored conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show a conversation's message tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and all of its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	conversations, err := rt.store.ListConversations(cmd.Context())
	if err != nil {
		return err
	}

	if len(conversations) == 0 {
		fmt.Println("No conversations.")
		return nil
	}

	for _, conv := range conversations {
		title := conv.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %s\n", conv.ID, conv.UpdatedAt.Format("2006-01-02 15:04"), title)
	}
	return nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	conv, err := rt.store.GetConversation(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	messages, err := rt.store.ListMessages(cmd.Context(), conv.ID)
	if err != nil {
		return err
	}

	title := conv.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%s  %s\n\n", conv.ID, title)

	for _, msg := range messages {
		indent := strings.Repeat("  ", msg.Depth)
		fmt.Printf("%s[%s] %s (%s)\n", indent, msg.Role, msg.ID, msg.CreatedAt.Format("15:04:05"))
		for _, line := range strings.Split(msg.Content, "\n") {
			fmt.Printf("%s  %s\n", indent, line)
		}
	}
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.store.DeleteConversation(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
