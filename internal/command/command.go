// Package command implements the bang-prefixed message commands. A
// message like "!ping" or "!ticklist 2026-09-30" is dispatched to a
// registered handler instead of the completion pipeline.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/slack-go/slack"
)

var commandPattern = regexp.MustCompile(`^!(\w+)(?:\s+(.+))?$`)

// Messenger is the slice of the Slack Web API commands write through.
// *slack.Client satisfies it.
type Messenger interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

// Request identifies where a command was issued and by whom.
type Request struct {
	UserID    string
	ChannelID string
	ThreadTS  string
}

// Command is one registered handler. Execute posts its own replies
// through the interpreter's messenger.
type Command struct {
	Name        string
	Description string
	Execute     func(ctx context.Context, args []string, req Request) error
}

type Interpreter struct {
	messenger Messenger
	logger    *slog.Logger
	commands  map[string]Command
}

func NewInterpreter(messenger Messenger, logger *slog.Logger) (*Interpreter, error) {
	if messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	in := &Interpreter{
		messenger: messenger,
		logger:    logger,
		commands:  make(map[string]Command),
	}
	in.registerBuiltins()
	return in, nil
}

func (in *Interpreter) Register(cmd Command) error {
	if in == nil {
		return fmt.Errorf("interpreter is not initialized")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return fmt.Errorf("command name is required")
	}
	if cmd.Execute == nil {
		return fmt.Errorf("command execute is required")
	}
	cmd.Name = name
	in.commands[name] = cmd
	return nil
}

// Interpret dispatches text when it is a bang command. The returned
// bool reports whether the message was consumed; handler failures are
// reported to the channel and logged, never propagated, so a broken
// command cannot take the event loop down with it.
func (in *Interpreter) Interpret(ctx context.Context, text string, req Request) bool {
	if in == nil {
		return false
	}
	match := commandPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return false
	}

	name, argsString := match[1], match[2]
	cmd, ok := in.commands[name]
	if !ok {
		in.post(ctx, req, fmt.Sprintf("Unknown command: %s. Use `!help` to see available commands.", name))
		return true
	}

	var args []string
	if strings.TrimSpace(argsString) != "" {
		args = strings.Fields(argsString)
	}
	if err := cmd.Execute(ctx, args, req); err != nil {
		in.logger.Error("command_error", "command", name, "error", err.Error())
		in.post(ctx, req, fmt.Sprintf("Error executing command %s. Please try again later.", name))
	}
	return true
}

func (in *Interpreter) registerBuiltins() {
	_ = in.Register(Command{
		Name:        "help",
		Description: "Shows all available commands",
		Execute: func(ctx context.Context, args []string, req Request) error {
			names := make([]string, 0, len(in.commands))
			for name := range in.commands {
				names = append(names, name)
			}
			sort.Strings(names)
			lines := make([]string, 0, len(names)+1)
			lines = append(lines, "Available commands:")
			for _, name := range names {
				lines = append(lines, fmt.Sprintf("• `%s`: %s", name, in.commands[name].Description))
			}
			in.post(ctx, req, strings.Join(lines, "\n"))
			return nil
		},
	})
	_ = in.Register(Command{
		Name:        "ping",
		Description: "Check if the bot is responsive",
		Execute: func(ctx context.Context, args []string, req Request) error {
			in.post(ctx, req, "Pong! 🏓")
			return nil
		},
	})
}

func (in *Interpreter) post(ctx context.Context, req Request, text string) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if req.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(req.ThreadTS))
	}
	if _, _, err := in.messenger.PostMessageContext(ctx, req.ChannelID, opts...); err != nil {
		in.logger.Warn("command_post_error", "channel_id", req.ChannelID, "error", err.Error())
	}
}
