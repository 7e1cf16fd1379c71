package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/slack-go/slack"
)

type fakeMessenger struct {
	posts   []string
	updates []string
}

func (f *fakeMessenger) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.posts = append(f.posts, channelID)
	return channelID, "1700000099.000100", nil
}

func (f *fakeMessenger) UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	f.updates = append(f.updates, timestamp)
	return channelID, timestamp, "", nil
}

func testRequest() Request {
	return Request{UserID: "U1", ChannelID: "C1"}
}

func TestInterpretIgnoresPlainMessages(t *testing.T) {
	t.Parallel()

	in, err := NewInterpreter(&fakeMessenger{}, slog.Default())
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	for _, text := range []string{"hello there", "what about !help mid-sentence?", "! spaced", ""} {
		if in.Interpret(context.Background(), text, testRequest()) {
			t.Fatalf("%q was consumed as a command", text)
		}
	}
}

func TestInterpretUnknownCommandSuggestsHelp(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{}
	in, err := NewInterpreter(messenger, slog.Default())
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	if !in.Interpret(context.Background(), "!frobnicate now", testRequest()) {
		t.Fatalf("command attempt was not consumed")
	}
	if len(messenger.posts) != 1 {
		t.Fatalf("got %d posts want 1", len(messenger.posts))
	}
}

func TestInterpretDispatchesRegisteredCommand(t *testing.T) {
	t.Parallel()

	in, err := NewInterpreter(&fakeMessenger{}, slog.Default())
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}

	var gotArgs []string
	err = in.Register(Command{
		Name:        "echo",
		Description: "test command",
		Execute: func(ctx context.Context, args []string, req Request) error {
			gotArgs = args
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !in.Interpret(context.Background(), "!echo one  two", testRequest()) {
		t.Fatalf("command was not consumed")
	}
	if len(gotArgs) != 2 || gotArgs[0] != "one" || gotArgs[1] != "two" {
		t.Fatalf("got args %v want [one two]", gotArgs)
	}
}

func TestInterpretHandlerErrorIsContained(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{}
	in, err := NewInterpreter(messenger, slog.Default())
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	err = in.Register(Command{
		Name:        "boom",
		Description: "always fails",
		Execute: func(ctx context.Context, args []string, req Request) error {
			return fmt.Errorf("handler exploded")
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !in.Interpret(context.Background(), "!boom", testRequest()) {
		t.Fatalf("command was not consumed")
	}
	if len(messenger.posts) != 1 {
		t.Fatalf("failure message was not posted")
	}
}

func TestParseCheckValue(t *testing.T) {
	t.Parallel()

	id, member, ok := parseCheckValue("check_C1-main_M42")
	if !ok || id != "C1-main" || member != "M42" {
		t.Fatalf("got (%q, %q, %v)", id, member, ok)
	}
	if _, _, ok := parseCheckValue("submit_C1-main"); ok {
		t.Fatalf("submit value parsed as check")
	}
	if _, _, ok := parseCheckValue("check_noseparator"); ok {
		t.Fatalf("value without member id parsed")
	}
}

func TestFormatTicklistMarksCheckedMembers(t *testing.T) {
	t.Parallel()

	list := &Ticklist{
		Members: []Member{
			{ID: "M1", Name: "Ada", Checked: true},
			{ID: "M2", Name: "Grace"},
		},
	}
	got := formatTicklist(list)
	if !strings.Contains(got, "✅ Ada") || !strings.Contains(got, "⬜️ Grace") {
		t.Fatalf("unexpected render:\n%s", got)
	}
}
