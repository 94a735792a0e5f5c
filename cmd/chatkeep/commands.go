package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vovakirdan/chatkeep/internal/config"
	"github.com/vovakirdan/chatkeep/internal/store"
)

const timeLayout = "2006-01-02 15:04"

func (c *cli) chatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List chats with their last message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			chats := c.app.Chats().ListChats(cmd.Context())
			defer c.app.Chats().Release(chats...)
			for _, chat := range chats {
				fmt.Fprintf(out, "%d\t%s\t%d messages", chat.ID, chat.Name, len(chat.Messages))
				if chat.LastMessage != "" {
					fmt.Fprintf(out, "\t[%s] %s: %s", chat.LastMessageDate.Local().Format(timeLayout), chat.LastSender, preview(chat.LastMessage))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func (c *cli) chatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Create, rename or delete a chat",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a chat with a unique name",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				chat, err := c.app.CreateChat(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created chat %d %q\n", chat.ID, chat.Name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <chat-id> <name>",
			Short: "Rename a chat",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				chat, err := c.app.RenameChat(cmd.Context(), id, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "renamed chat %d to %q\n", chat.ID, chat.Name)
				c.app.Chats().Release(chat)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <chat-id>",
			Short: "Delete a chat and all of its messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := c.app.DeleteChat(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted chat %d\n", id)
				return nil
			},
		},
	)
	return cmd
}

func (c *cli) messagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <chat-id>",
		Short: "Print the messages of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			msgs, err := c.app.Chats().ListMessages(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				printMessage(cmd, m)
			}
			c.app.Chats().ReleaseMessages(msgs...)
			return nil
		},
	}
}

func (c *cli) sendCommand() *cobra.Command {
	var replyTo int64
	cmd := &cobra.Command{
		Use:   "send <chat-id> <text>",
		Short: "Send a message and get the robot's answer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			user, robot, err := c.app.SendMessage(cmd.Context(), id, strings.Join(args[1:], " "), replyTo)
			if user != nil {
				printMessage(cmd, user)
			}
			if robot != nil {
				printMessage(cmd, robot)
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&replyTo, "reply-to", 0, "id of the message being answered")
	return cmd
}

func (c *cli) messageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Edit, delete or forward messages",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "edit <chat-id> <message-id> <text>",
			Short: "Replace the text of one of your messages",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseIDs(args[:2])
				if err != nil {
					return err
				}
				msg, err := c.app.EditMessage(cmd.Context(), ids[0], ids[1], strings.Join(args[2:], " "))
				if err != nil {
					return err
				}
				printMessage(cmd, msg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <chat-id> <message-id>...",
			Short: "Delete your messages",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				if err := c.app.DeleteMessages(cmd.Context(), ids[0], ids[1:]...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d message(s)\n", len(ids)-1)
				return nil
			},
		},
		&cobra.Command{
			Use:   "forward <from-chat-id> <to-chat-id> <message-id>...",
			Short: "Quote messages into another chat",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				user, robot, err := c.app.ForwardMessages(cmd.Context(), ids[0], ids[2:], ids[1])
				if user != nil {
					printMessage(cmd, user)
				}
				if robot != nil {
					printMessage(cmd, robot)
				}
				return err
			},
		},
	)
	return cmd
}

func (c *cli) sizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Check whether the database is within its size limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, err := c.app.Chats().CheckDatabaseSize(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "database size limit exceeded, delete old chats to free space")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database size ok")
			return nil
		},
	}
}

func (c *cli) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		// Overrides the root hook: no database is needed here.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.ResolvePath(c.configPath)
			cfg := config.Default()
			cfg.UpdateFrom(c.overrides)
			if err := config.WriteDefault(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})
	return cmd
}

func printMessage(cmd *cobra.Command, m *store.Message) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "#%d [%s] %s", m.ID, m.Date.Local().Format(timeLayout), m.Sender)
	if m.IsReply() {
		fmt.Fprintf(out, " (re #%d", *m.ReplyToMessageID)
		if m.ReplyPreviewText != nil {
			fmt.Fprintf(out, " %q", preview(*m.ReplyPreviewText))
		}
		fmt.Fprint(out, ")")
	}
	fmt.Fprintf(out, ": %s\n", m.Text)
}

func preview(text string) string {
	const limit = 40
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", s, store.ErrValidation)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
