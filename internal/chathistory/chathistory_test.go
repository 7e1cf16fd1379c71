package chathistory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"github.com/openfactory/huddle/internal/conversation"
)

type fakeSource struct {
	replies     []slack.Message
	repliesErr  error
	history     []slack.Message
	historyErr  error
	users       map[string]string
	userInfoErr error
}

func (f *fakeSource) GetConversationRepliesContext(_ context.Context, _ *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	return f.replies, false, "", f.repliesErr
}

func (f *fakeSource) GetConversationHistoryContext(_ context.Context, _ *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return &slack.GetConversationHistoryResponse{Messages: f.history}, nil
}

func (f *fakeSource) GetUserInfoContext(_ context.Context, user string) (*slack.User, error) {
	if f.userInfoErr != nil {
		return nil, f.userInfoErr
	}
	name, ok := f.users[user]
	if !ok {
		return nil, errors.New("user_not_found")
	}
	return &slack.User{ID: user, RealName: name}, nil
}

func msg(user, text, ts string) slack.Message {
	m := slack.Message{}
	m.User = user
	m.Text = text
	m.Timestamp = ts
	return m
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchThreadPreservesDeliveryOrder(t *testing.T) {
	t.Parallel()

	src := &fakeSource{replies: []slack.Message{
		msg("U1", "first", "1.0"),
		msg("U2", "second", "2.0"),
	}}
	adapter := NewAdapter(src, testLogger())

	got := adapter.Fetch(context.Background(), "C1", "1.0")
	if len(got) != 2 {
		t.Fatalf("len(Fetch()) = %d, want 2", len(got))
	}
	if got[0].Text != "first" || got[1].Text != "second" {
		t.Fatalf("thread order = %q,%q, want first,second", got[0].Text, got[1].Text)
	}
}

func TestFetchChannelReversesToOldestFirst(t *testing.T) {
	t.Parallel()

	src := &fakeSource{history: []slack.Message{
		msg("U1", "newest", "3.0"),
		msg("U1", "middle", "2.0"),
		msg("U1", "oldest", "1.0"),
	}}
	adapter := NewAdapter(src, testLogger())

	got := adapter.Fetch(context.Background(), "C1", "")
	if len(got) != 3 {
		t.Fatalf("len(Fetch()) = %d, want 3", len(got))
	}
	if got[0].Text != "oldest" || got[2].Text != "newest" {
		t.Fatalf("channel order = %q..%q, want oldest..newest", got[0].Text, got[2].Text)
	}
}

func TestFetchErrorDegradesToEmpty(t *testing.T) {
	t.Parallel()

	src := &fakeSource{repliesErr: errors.New("channel_not_found"), historyErr: errors.New("channel_not_found")}
	adapter := NewAdapter(src, testLogger())

	if got := adapter.Fetch(context.Background(), "C1", "1.0"); got != nil {
		t.Fatalf("Fetch(thread) = %v, want nil on error", got)
	}
	if got := adapter.Fetch(context.Background(), "C1", ""); got != nil {
		t.Fatalf("Fetch(channel) = %v, want nil on error", got)
	}
}

func TestTurnsTagRolesAndResolveNames(t *testing.T) {
	t.Parallel()

	src := &fakeSource{users: map[string]string{"U1": "Ada Lovelace"}}
	adapter := NewAdapter(src, testLogger())

	turns, roster := adapter.Turns(context.Background(), []Message{
		{UserID: "U1", Text: "hello bot", Timestamp: "1.0"},
		{UserID: "UBOT", Text: "hello ada", Timestamp: "2.0"},
		{UserID: "U1", Text: "", Timestamp: "3.0"},
	}, "UBOT")

	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2 (empty text skipped)", len(turns))
	}
	if turns[0].Role != conversation.RoleUser || turns[0].SpeakerName != "ada_lovelace" {
		t.Fatalf("first turn = %+v, want user/ada_lovelace", turns[0])
	}
	if turns[1].Role != conversation.RoleAssistant || turns[1].SpeakerName != "" {
		t.Fatalf("second turn = %+v, want assistant with no name", turns[1])
	}
	if len(roster) != 1 || roster[0] != "ada_lovelace" {
		t.Fatalf("roster = %v, want [ada_lovelace]", roster)
	}
}

func TestTurnsNameLookupFailureUsesPlaceholder(t *testing.T) {
	t.Parallel()

	src := &fakeSource{userInfoErr: errors.New("ratelimited")}
	adapter := NewAdapter(src, testLogger())

	turns, roster := adapter.Turns(context.Background(), []Message{
		{UserID: "U42", Text: "hi", Timestamp: "1.0"},
	}, "UBOT")
	if len(turns) != 1 {
		t.Fatalf("len(turns) = %d, want 1", len(turns))
	}
	if turns[0].SpeakerName != "user_u42" {
		t.Fatalf("SpeakerName = %q, want user_u42", turns[0].SpeakerName)
	}
	if len(roster) != 1 || roster[0] != "user_u42" {
		t.Fatalf("roster = %v, want [user_u42]", roster)
	}
}

func TestTurnsBotIDMessagesAreAssistant(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(&fakeSource{}, testLogger())
	turns, _ := adapter.Turns(context.Background(), []Message{
		{UserID: "", Text: "posted by app", Timestamp: "1.0", FromBot: true},
	}, "UBOT")
	if len(turns) != 1 || turns[0].Role != conversation.RoleAssistant {
		t.Fatalf("turns = %+v, want one assistant turn", turns)
	}
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Ada Lovelace", "ada_lovelace"},
		{"alice.smith@dev", "alice_smith_dev"},
		{"ALICE-123", "alice_123"},
		{"  padded  ", "padded"},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	long := SanitizeName(strings.Repeat("a", 100))
	if len(long) != 64 {
		t.Fatalf("len(SanitizeName(long)) = %d, want 64", len(long))
	}
}
