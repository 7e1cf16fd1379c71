package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/slack-go/slack"
)

type fakePostClient struct {
	errs  []error
	calls int
}

func (f *fakePostClient) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.calls++
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return "", "", f.errs[f.calls-1]
	}
	return channelID, "1700000099.000100", nil
}

func TestSlackPosterRetriesRateLimit(t *testing.T) {
	t.Parallel()

	client := &fakePostClient{errs: []error{
		&slack.RateLimitedError{RetryAfter: time.Millisecond},
	}}
	poster, err := NewSlackPoster(client)
	if err != nil {
		t.Fatalf("NewSlackPoster: %v", err)
	}

	ts, err := poster.Post(context.Background(), "C1", "", "hello")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if ts == "" {
		t.Fatalf("missing reply timestamp")
	}
	if client.calls != 2 {
		t.Fatalf("got %d attempts want 2", client.calls)
	}
}

func TestSlackPosterDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	client := &fakePostClient{errs: []error{
		fmt.Errorf("channel_not_found"),
	}}
	poster, err := NewSlackPoster(client)
	if err != nil {
		t.Fatalf("NewSlackPoster: %v", err)
	}

	if _, err := poster.Post(context.Background(), "C1", "", "hello"); err == nil {
		t.Fatalf("expected error")
	}
	if client.calls != 1 {
		t.Fatalf("got %d attempts want 1", client.calls)
	}
}

func TestSlackPosterGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	serverErr := slack.StatusCodeError{Code: 503, Status: "503 Service Unavailable"}
	client := &fakePostClient{errs: []error{serverErr, serverErr, serverErr, serverErr}}
	poster, err := NewSlackPoster(client)
	if err != nil {
		t.Fatalf("NewSlackPoster: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := poster.Post(ctx, "C1", "", "hello"); err == nil {
		t.Fatalf("expected error")
	}
	if client.calls != maxPostAttempts {
		t.Fatalf("got %d attempts want %d", client.calls, maxPostAttempts)
	}
}

func TestPostRetryDelay(t *testing.T) {
	t.Parallel()

	if wait, ok := postRetryDelay(&slack.RateLimitedError{RetryAfter: 7 * time.Second}, 1); !ok || wait != 7*time.Second {
		t.Fatalf("got %v %v want advertised delay", wait, ok)
	}
	if wait, ok := postRetryDelay(&slack.RateLimitedError{}, 1); !ok || wait != 1*time.Second {
		t.Fatalf("got %v %v want 1s fallback", wait, ok)
	}
	if wait, ok := postRetryDelay(slack.StatusCodeError{Code: 500}, 2); !ok || wait != 1*time.Second {
		t.Fatalf("got %v %v want 1s for second attempt", wait, ok)
	}
	if _, ok := postRetryDelay(fmt.Errorf("invalid_auth"), 1); ok {
		t.Fatalf("client error marked retryable")
	}
}
