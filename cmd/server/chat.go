package main

import (
	"bufio"
	"chat-memory/internal/app"
	"chat-memory/internal/logger"
	"chat-memory/internal/service/chat"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

var (
	chatUserID         int64
	chatConversationID string
	chatModel          string
	chatStream         bool
)

func init() {
	chatCmd.Flags().Int64Var(&chatUserID, "user", 1, "user id the conversation belongs to")
	chatCmd.Flags().StringVar(&chatConversationID, "conversation", "", "continue an existing conversation")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model id (defaults to the provider default)")
	chatCmd.Flags().BoolVar(&chatStream, "stream", true, "stream replies as they are generated")
	rootCmd.AddCommand(chatCmd)
}

const chatHelp = `Commands:
  /new       start a new conversation
  /history   show the durable history of this conversation
  /context   show what the model receives next turn
  /title     suggest a title from the first message
  /clear     drop the cached session (history is kept)
  /delete    delete this conversation
  /quit      exit`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive console chat backed by the session manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		// Keep logs off the conversation
		logger.Log.SetOutput(os.Stderr)

		deps, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()
		deps.Sessions.Start(ctx)

		repl := &console{deps: deps, userID: chatUserID, conversationID: chatConversationID}
		fmt.Println("Type a message, or /help.")

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				return nil
			}
			if err := repl.handle(ctx, line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	},
}

type console struct {
	deps           *app.Config
	userID         int64
	conversationID string
}

func (c *console) handle(ctx context.Context, line string) error {
	switch line {
	case "/help":
		fmt.Println(chatHelp)
		return nil
	case "/new":
		conv, err := c.deps.Conversations.CreateConversation(ctx, c.userID, "")
		if err != nil {
			return err
		}
		c.conversationID = conv.ID
		fmt.Printf("Started conversation %s\n", conv.ID)
		return nil
	}

	if strings.HasPrefix(line, "/") {
		if c.conversationID == "" {
			return fmt.Errorf("no conversation yet, send a message or use /new")
		}
		return c.command(ctx, line)
	}
	return c.send(ctx, line)
}

func (c *console) command(ctx context.Context, line string) error {
	switch line {
	case "/history":
		page, err := c.deps.Conversations.GetConversationMessages(ctx, c.conversationID, c.userID, 0, 0)
		if err != nil {
			return err
		}
		for _, m := range page.Messages {
			fmt.Printf("[%s] %-9s %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Role, m.Content)
		}
		fmt.Printf("%d messages\n", page.Total)
	case "/context":
		messages, err := c.deps.Sessions.GetConversationContext(ctx, c.userID, c.conversationID)
		if err != nil {
			return err
		}
		for _, m := range messages {
			fmt.Printf("%-9s %s\n", m.Role, m.Content)
		}
	case "/title":
		title, err := c.deps.Conversations.SuggestTitle(ctx, c.conversationID, c.userID)
		if err != nil {
			return err
		}
		fmt.Printf("Suggested title: %s\n", title)
	case "/clear":
		if err := c.deps.Sessions.ClearSession(ctx, c.conversationID); err != nil {
			return err
		}
		fmt.Println("Session cleared")
	case "/delete":
		if err := c.deps.Conversations.DeleteConversation(ctx, c.conversationID, c.userID); err != nil {
			return err
		}
		fmt.Printf("Deleted conversation %s\n", c.conversationID)
		c.conversationID = ""
	default:
		return fmt.Errorf("unknown command %s, try /help", line)
	}
	return nil
}

func (c *console) send(ctx context.Context, message string) error {
	req := chat.SendMessageRequest{
		Message:        message,
		ConversationID: c.conversationID,
		Model:          chatModel,
		UserID:         c.userID,
	}

	if !chatStream {
		resp, err := c.deps.Chat.SendMessage(ctx, req)
		if err != nil {
			return err
		}
		c.conversationID = resp.ConversationID
		fmt.Println(resp.Response)
		return nil
	}

	chunks, err := c.deps.Chat.SendMessageStream(ctx, req)
	if err != nil {
		return err
	}
	for chunk := range chunks {
		if chunk.ConvID != "" {
			c.conversationID = chunk.ConvID
		}
		fmt.Print(chunk.Content)
	}
	fmt.Println()
	return nil
}
