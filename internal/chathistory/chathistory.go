// Package chathistory fetches prior messages for a channel or thread
// from Slack and normalizes them into role-tagged conversation turns.
package chathistory

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/slack-go/slack"

	"github.com/openfactory/huddle/internal/conversation"
)

const (
	threadFetchLimit  = 100
	channelFetchLimit = 10
	maxNameLen        = 64
)

var nameInvalidChars = regexp.MustCompile(`[^a-z0-9_]`)

// Source is the slice of the Slack Web API the adapter reads from.
// *slack.Client satisfies it.
type Source interface {
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

// Message is one normalized platform message, oldest-first in a fetch.
type Message struct {
	UserID    string
	Text      string
	Timestamp string
	FromBot   bool
}

type Adapter struct {
	source Source
	logger *slog.Logger
}

func NewAdapter(source Source, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{source: source, logger: logger}
}

// Fetch returns the recent messages for a channel or thread, oldest
// first. Thread fetches read up to 100 replies in delivery order;
// channel fetches read the 10 most recent messages and reverse them.
// Any platform error degrades to an empty history.
func (a *Adapter) Fetch(ctx context.Context, channelID, threadTS string) []Message {
	if a == nil || a.source == nil {
		return nil
	}
	channelID = strings.TrimSpace(channelID)
	threadTS = strings.TrimSpace(threadTS)

	var raw []slack.Message
	if threadTS != "" {
		msgs, _, _, err := a.source.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Limit:     threadFetchLimit,
		})
		if err != nil {
			a.logger.Warn("history_fetch_error", "channel_id", channelID, "thread_ts", threadTS, "error", err.Error())
			return nil
		}
		raw = msgs
	} else {
		resp, err := a.source.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Limit:     channelFetchLimit,
		})
		if err != nil {
			a.logger.Warn("history_fetch_error", "channel_id", channelID, "error", err.Error())
			return nil
		}
		// conversations.history delivers newest first.
		for i := len(resp.Messages) - 1; i >= 0; i-- {
			raw = append(raw, resp.Messages[i])
		}
	}

	out := make([]Message, 0, len(raw))
	for _, msg := range raw {
		out = append(out, Message{
			UserID:    strings.TrimSpace(msg.User),
			Text:      msg.Text,
			Timestamp: strings.TrimSpace(msg.Timestamp),
			FromBot:   strings.TrimSpace(msg.BotID) != "",
		})
	}
	return out
}

// Turns converts fetched messages into conversation turns, resolving
// each distinct speaker's display name best-effort. It returns the
// turns oldest-first plus the resolved participant roster.
func (a *Adapter) Turns(ctx context.Context, msgs []Message, botUserID string) ([]conversation.Turn, []string) {
	if a == nil || len(msgs) == 0 {
		return nil, nil
	}
	botUserID = strings.TrimSpace(botUserID)

	names := make(map[string]string)
	roster := make([]string, 0, 4)
	resolve := func(userID string) string {
		if userID == "" {
			return ""
		}
		if name, ok := names[userID]; ok {
			return name
		}
		name := a.resolveName(ctx, userID)
		names[userID] = name
		roster = append(roster, name)
		return name
	}

	turns := make([]conversation.Turn, 0, len(msgs))
	for _, msg := range msgs {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		turn := conversation.Turn{Role: conversation.RoleUser, Content: msg.Text}
		if msg.FromBot || (botUserID != "" && msg.UserID == botUserID) {
			turn.Role = conversation.RoleAssistant
		} else {
			turn.SpeakerName = resolve(msg.UserID)
		}
		turns = append(turns, turn)
	}
	return turns, roster
}

// SpeakerName resolves a user's sanitized display name for the
// completion API, degrading to a placeholder on lookup failure.
func (a *Adapter) SpeakerName(ctx context.Context, userID string) string {
	if a == nil {
		return SanitizeName("user_" + userID)
	}
	return a.resolveName(ctx, userID)
}

// resolveName looks up a user's real name; failures degrade to a
// synthesized placeholder rather than failing the fetch.
func (a *Adapter) resolveName(ctx context.Context, userID string) string {
	raw := ""
	if a.source != nil {
		user, err := a.source.GetUserInfoContext(ctx, userID)
		if err != nil {
			a.logger.Debug("user_info_error", "user_id", userID, "error", err.Error())
		} else if user != nil {
			raw = strings.TrimSpace(user.RealName)
			if raw == "" {
				raw = strings.TrimSpace(user.Name)
			}
		}
	}
	if raw == "" {
		raw = "user_" + userID
	}
	return SanitizeName(raw)
}

// SanitizeName lowercases a display name, replaces anything outside
// [a-z0-9_] with underscores, and truncates to 64 characters. The
// completion API rejects other characters in the per-message name field.
func SanitizeName(raw string) string {
	name := nameInvalidChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "_")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}
