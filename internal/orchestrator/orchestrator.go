// Package orchestrator runs one inbound message through the full
// exchange pipeline: eligibility, history, prompt assembly, completion,
// and reply delivery. Each conversation key is serialized so concurrent
// events for the same user and thread cannot interleave.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openfactory/huddle/internal/addressing"
	"github.com/openfactory/huddle/internal/chathistory"
	"github.com/openfactory/huddle/internal/conversation"
	"github.com/openfactory/huddle/internal/llm"
	"github.com/openfactory/huddle/internal/prompt"
	"github.com/openfactory/huddle/internal/toollist"
)

const (
	defaultExchangeTimeout = 60 * time.Second

	apologyText = "Sorry, I ran into a problem generating a response. Please try again."
)

// History is the chathistory surface the pipeline reads.
// *chathistory.Adapter satisfies it.
type History interface {
	Fetch(ctx context.Context, channelID, threadTS string) []chathistory.Message
	Turns(ctx context.Context, msgs []chathistory.Message, botUserID string) ([]conversation.Turn, []string)
	SpeakerName(ctx context.Context, userID string) string
}

// Poster delivers a reply to a channel, threading it when threadTS is
// set. It returns the timestamp of the posted message.
type Poster interface {
	Post(ctx context.Context, channelID, threadTS, text string) (string, error)
}

// ToolSource lists the external tools advertised in the system prompt.
type ToolSource interface {
	Fetch(ctx context.Context) ([]toollist.Tool, error)
}

// Retriever supplies retrieved document context for the system prompt.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// Request is one inbound message the pipeline should consider.
type Request struct {
	UserID    string
	ChannelID string
	Text      string
	// ThreadTS is empty for direct messages and top-level channel
	// messages.
	ThreadTS string
	// Mention is true when the bot was mentioned directly; mentions
	// bypass the thread eligibility check.
	Mention bool
}

// Options configures the pipeline. Store, History, Prompt, Completer,
// Poster, and BotUserID are required; Tools and Retriever are optional
// augmentations.
type Options struct {
	Store     *conversation.Store
	History   History
	Prompt    *prompt.Builder
	Completer llm.Client
	Poster    Poster
	Tools     ToolSource
	Retriever Retriever
	BotUserID string
	Timeout   time.Duration
	Logger    *slog.Logger
}

type Orchestrator struct {
	store     *conversation.Store
	history   History
	prompt    *prompt.Builder
	completer llm.Client
	poster    Poster
	tools     ToolSource
	retriever Retriever
	botUserID string
	timeout   time.Duration
	logger    *slog.Logger
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("history is required")
	}
	if opts.Prompt == nil {
		return nil, fmt.Errorf("prompt builder is required")
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if opts.Poster == nil {
		return nil, fmt.Errorf("poster is required")
	}
	if strings.TrimSpace(opts.BotUserID) == "" {
		return nil, fmt.Errorf("bot user id is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultExchangeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		store:     opts.Store,
		history:   opts.History,
		prompt:    opts.Prompt,
		completer: opts.Completer,
		poster:    opts.Poster,
		tools:     opts.Tools,
		retriever: opts.Retriever,
		botUserID: strings.TrimSpace(opts.BotUserID),
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}, nil
}

// Handle runs one exchange end to end. A nil return means the exchange
// finished, including the cases where the pipeline decided not to
// reply. Errors carry the conversation key for the caller's log.
func (o *Orchestrator) Handle(ctx context.Context, req Request) error {
	if o == nil {
		return fmt.Errorf("orchestrator is not initialized")
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.ChannelID = strings.TrimSpace(req.ChannelID)
	req.ThreadTS = strings.TrimSpace(req.ThreadTS)
	if req.UserID == "" || req.ChannelID == "" {
		return fmt.Errorf("user id and channel id are required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil
	}

	key := conversation.NewKey(req.UserID, req.ThreadTS)
	logger := o.logger.With(
		"exchange_id", uuid.NewString(),
		"conversation", key.String(),
		"channel_id", req.ChannelID,
	)

	o.store.Lock(key)
	defer o.store.Unlock(key)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	inThread := req.ThreadTS != ""

	msgs := o.history.Fetch(ctx, req.ChannelID, req.ThreadTS)
	if inThread && !req.Mention {
		timeline := addressing.Analyze(addressingMessages(msgs), o.botUserID)
		if !timeline.ShouldRespond() {
			logger.Info("exchange_skipped", "reason", "not_addressed")
			return nil
		}
	}

	platformTurns, roster := o.history.Turns(ctx, msgs, o.botUserID)
	speaker := o.history.SpeakerName(ctx, req.UserID)
	roster = append(roster, speaker)

	userTurn := conversation.Turn{
		Role:        conversation.RoleUser,
		Content:     req.Text,
		SpeakerName: speaker,
	}
	stored := o.store.Get(key)
	turns := make([]conversation.Turn, 0, len(platformTurns)+len(stored)+2)
	turns = append(turns, platformTurns...)
	turns = append(turns, stored...)
	turns = append(turns, userTurn)

	system := o.prompt.Build(prompt.BuildInput{
		InThread:         inThread,
		ParticipantNames: roster,
		Tools:            o.fetchTools(ctx, logger),
		RetrievedContext: o.retrieveContext(ctx, logger, req.Text),
	})

	resp, err := o.completer.Complete(ctx, llm.Request{
		Messages: completionMessages(system, turns),
	})
	if err != nil {
		logger.Error("completion_error", "error", err.Error())
		if _, postErr := o.poster.Post(ctx, req.ChannelID, req.ThreadTS, apologyText); postErr != nil {
			logger.Warn("apology_post_error", "error", postErr.Error())
		}
		return fmt.Errorf("complete exchange %s: %w", key.String(), err)
	}

	if strings.Contains(resp.Text, prompt.Sentinel) {
		logger.Info("exchange_suppressed", "reason", "sentinel")
		return nil
	}

	o.store.Append(key, userTurn)
	o.store.Append(key, conversation.Turn{
		Role:    conversation.RoleAssistant,
		Content: resp.Text,
	})

	ts, err := o.poster.Post(ctx, req.ChannelID, req.ThreadTS, resp.Text)
	if err != nil {
		logger.Error("reply_post_error", "error", err.Error())
		return fmt.Errorf("post reply %s: %w", key.String(), err)
	}

	logger.Info("exchange_complete",
		"reply_ts", ts,
		"duration_ms", time.Since(started).Milliseconds(),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
	)
	return nil
}

func (o *Orchestrator) fetchTools(ctx context.Context, logger *slog.Logger) []toollist.Tool {
	if o.tools == nil {
		return nil
	}
	tools, err := o.tools.Fetch(ctx)
	if err != nil {
		logger.Warn("tool_list_error", "error", err.Error())
		return nil
	}
	return tools
}

func (o *Orchestrator) retrieveContext(ctx context.Context, logger *slog.Logger, query string) string {
	if o.retriever == nil {
		return ""
	}
	text, err := o.retriever.Retrieve(ctx, query)
	if err != nil {
		logger.Warn("retrieval_error", "error", err.Error())
		return ""
	}
	return text
}

func addressingMessages(msgs []chathistory.Message) []addressing.Message {
	out := make([]addressing.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, addressing.Message{Text: msg.Text, Timestamp: msg.Timestamp})
	}
	return out
}

func completionMessages(system string, turns []conversation.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, turn := range turns {
		msg := llm.Message{Content: turn.Content}
		switch turn.Role {
		case conversation.RoleAssistant:
			msg.Role = llm.RoleAssistant
		default:
			msg.Role = llm.RoleUser
			msg.Name = turn.SpeakerName
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
