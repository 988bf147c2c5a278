package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/helpyourself/companion/backend/internal/app"
	"github.com/helpyourself/companion/backend/internal/model/chat"
	chatService "github.com/helpyourself/companion/backend/internal/service/chat"
	"github.com/helpyourself/companion/backend/internal/storage"
)

type ChatFlags struct {
	Category string
	Timeout  time.Duration
}

func NewChatFlags() *ChatFlags {
	return &ChatFlags{Category: string(chat.CategoryGeneral), Timeout: 90 * time.Second}
}

func (f *ChatFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Category, "category", f.Category, "Conversation category (GENERAL, CRISIS_SUPPORT, THERAPY)")
	fs.DurationVar(&f.Timeout, "timeout", f.Timeout, "Overall deadline for the turn")
}

func NewChatCommand(e *env) *cobra.Command {
	f := NewChatFlags()

	cmd := &cobra.Command{
		Use:   "chat MESSAGE...",
		Short: "Send one message to the configured chat backend and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), f.Timeout)
			defer cancel()

			models, err := app.NewModels(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}

			coordinator := chatService.NewCoordinator(storage.NewMemoryStore(), models.Responder, chatService.Options{
				UserID:       e.cfg.Chat.UserID,
				HistoryLimit: e.cfg.Chat.HistoryLimit,
			}, e.logger)
			defer coordinator.Close()

			if _, err := coordinator.NewConversation(ctx, chat.ParseCategory(f.Category)); err != nil {
				return err
			}
			result, err := coordinator.SendMessage(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case result.ErrorText != "":
				fmt.Fprintln(cmd.ErrOrStderr(), result.ErrorText)
				return errors.New("chat turn failed")
			case result.Reply != nil:
				fmt.Fprintln(out, result.Reply.Content)
			}
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
