package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sawane/loom/pkg/agent"
)

var (
	chatConversationID string
	chatFocusMessageID string
	chatNoStream       bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [input]",
	Short: "Run one chat turn",
	Long: `Run one chat turn against the configured model. With --conversation the
turn continues an existing conversation; --focus anchors it at an earlier
message, growing a new branch from that point.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversationID, "conversation", "c", "", "conversation to continue (default: create a new one)")
	chatCmd.Flags().StringVarP(&chatFocusMessageID, "focus", "f", "", "message id to anchor the turn at")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "wait for the full answer instead of streaming")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ag, err := rt.registry.Get(agent.Options{})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := agent.Params{
		Input:          strings.Join(args, " "),
		ConversationID: chatConversationID,
		FocusMessageID: chatFocusMessageID,
	}

	if chatNoStream {
		return chatBlocking(ctx, ag, params)
	}
	return chatStreaming(ctx, ag, params)
}

func chatBlocking(ctx context.Context, ag *agent.Agent, params agent.Params) error {
	turn, err := ag.Chat(ctx, params)
	if err != nil {
		return err
	}

	fmt.Println(turn.AssistantMessage.Content)
	fmt.Fprintf(os.Stderr, "\nconversation: %s\nmessage: %s\n", turn.Conversation.ID, turn.AssistantMessage.ID)
	return nil
}

func chatStreaming(ctx context.Context, ag *agent.Agent, params agent.Params) error {
	events, err := ag.ChatStream(ctx, params)
	if err != nil {
		return err
	}

	finalized := false
	for ev := range events {
		switch ev.Kind {
		case agent.EventStatus:
			fmt.Fprintf(os.Stderr, "[%s]\n", ev.Status)
		case agent.EventDelta:
			fmt.Print(ev.Delta)
		case agent.EventFinal:
			finalized = true
			fmt.Println()
			fmt.Fprintf(os.Stderr, "\nconversation: %s\nmessage: %s\n", ev.ConversationID, ev.AssistantMessageID)
		}
	}
	if !finalized {
		return fmt.Errorf("turn did not complete")
	}
	return nil
}
