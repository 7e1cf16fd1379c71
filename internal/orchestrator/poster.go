package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

const maxPostAttempts = 3

// PostClient is the slice of the Slack Web API the poster writes
// through. *slack.Client satisfies it.
type PostClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackPoster posts replies with bounded retries: rate limits wait out
// the advertised delay, transient server errors back off briefly, and
// everything else fails immediately.
type SlackPoster struct {
	client PostClient
}

func NewSlackPoster(client PostClient) (*SlackPoster, error) {
	if client == nil {
		return nil, fmt.Errorf("slack client is required")
	}
	return &SlackPoster{client: client}, nil
}

func (p *SlackPoster) Post(ctx context.Context, channelID, threadTS, text string) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("poster is not initialized")
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return "", fmt.Errorf("channel id is required")
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("text is required")
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS = strings.TrimSpace(threadTS); threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	var lastErr error
	for attempt := 1; attempt <= maxPostAttempts; attempt++ {
		_, ts, err := p.client.PostMessageContext(ctx, channelID, opts...)
		if err == nil {
			return ts, nil
		}
		lastErr = err
		if attempt >= maxPostAttempts {
			break
		}
		wait, retryable := postRetryDelay(err, attempt)
		if !retryable {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("slack chat.postMessage failed: %w", lastErr)
}

func postRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		if rateLimited.RetryAfter > 0 {
			return rateLimited.RetryAfter, true
		}
		return 1 * time.Second, true
	}
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) && statusErr.Code >= 500 && statusErr.Code <= 599 {
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	}
	return 0, false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
