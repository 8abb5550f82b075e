/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"converse/pkg/codec"
	"converse/pkg/config"
	"converse/pkg/demo"
	"converse/pkg/dialog"
	"converse/pkg/session"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatAddress string

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the shipped dialog on the terminal",
	Long:  "Runs the registration dialog locally over stdin and stdout, without a broker or session store. Collaborator services with a URL configured are called for real.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		runChat(demo.New(dialogDeps(cfg)))
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatAddress, "address", "chat:local", "address to converse as")
}

func runChat(d *dialog.Dialog) {
	ctx := context.Background()
	sess := session.New(chatAddress)

	if !runChatTurn(ctx, d, sess, "", codec.SessionNew) {
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("👨🏻 ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("input error: %v\n", err)
			}
			return
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if isExitCommand(input) {
			return
		}

		event := codec.SessionResume
		if !sess.InSession {
			event = codec.SessionNew
		}
		if !runChatTurn(ctx, d, sess, input, event) {
			return
		}
	}
}

func runChatTurn(ctx context.Context, d *dialog.Dialog, sess *session.Session, input string, event codec.SessionEvent) bool {
	msg := codec.Inbound{
		ToAddr:       "converse",
		FromAddr:     sess.Address,
		SessionEvent: event,
		MessageID:    uuid.NewString(),
	}
	if input != "" {
		msg.Content = &input
	}

	outs, _, err := d.NewApp(sess, msg).Run(ctx)
	if err != nil {
		fmt.Printf("turn failed: %v\n", err)
		return false
	}

	for _, out := range outs {
		printReply(out.Content)
	}
	return true
}

func printReply(message string) {
	lines := replyLines(message)
	for _, line := range lines {
		fmt.Printf("💬 %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Println()
	}
}

func replyLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
