// Package eventserver exposes the HTTP surface: the Slack Events API
// intake with its subscription handshake, the interactive-action
// endpoint, and a health probe.
package eventserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

const (
	maxEventBody = 1 << 20

	defaultHandleTimeout = 90 * time.Second
)

// Event is one inbound message the server hands to the dispatcher.
type Event struct {
	UserID    string
	ChannelID string
	Text      string
	Timestamp string
	ThreadTS  string
	Mention   bool
	DirectMsg bool
}

// Handler processes one dispatched event. It runs on its own goroutine
// so the HTTP acknowledgment is never held up by a completion call.
type Handler func(ctx context.Context, ev Event)

// ActionHandler processes one interactive block action.
type ActionHandler func(ctx context.Context, actionID, value, channelID, messageTS, threadTS string)

type RoutesOptions struct {
	// SigningSecret enables Slack request signature verification when
	// set. Leaving it empty skips verification, which is only
	// acceptable in local development.
	SigningSecret string
	BotUserID     string
	Handle        Handler
	HandleAction  ActionHandler
	HandleTimeout time.Duration
	Logger        *slog.Logger
}

func RegisterRoutes(mux *http.ServeMux, opts RoutesOptions) {
	if mux == nil {
		return
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = defaultHandleTimeout
	}
	secret := strings.TrimSpace(opts.SigningSecret)
	botUserID := strings.TrimSpace(opts.BotUserID)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
		default:
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"time": time.Now().Format(time.RFC3339Nano),
		})
	})

	mux.HandleFunc("/slack/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := readVerifiedBody(r, secret)
		if err != nil {
			logger.Warn("event_verify_error", "error", err.Error())
			http.Error(w, "invalid request", http.StatusUnauthorized)
			return
		}

		event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
		if err != nil {
			http.Error(w, "invalid event payload", http.StatusBadRequest)
			return
		}

		switch event.Type {
		case slackevents.URLVerification:
			var challenge slackevents.ChallengeResponse
			if err := json.Unmarshal(body, &challenge); err != nil {
				http.Error(w, "invalid challenge payload", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"challenge": challenge.Challenge})

		case slackevents.CallbackEvent:
			if ev, ok := inboundEvent(event.InnerEvent, botUserID); ok && opts.Handle != nil {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), opts.HandleTimeout)
					defer cancel()
					opts.Handle(ctx, ev)
				}()
			}
			w.WriteHeader(http.StatusOK)

		default:
			w.WriteHeader(http.StatusOK)
		}
	})

	mux.HandleFunc("/slack/interactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form payload", http.StatusBadRequest)
			return
		}
		var callback slack.InteractionCallback
		if err := json.Unmarshal([]byte(r.PostFormValue("payload")), &callback); err != nil {
			http.Error(w, "invalid interaction payload", http.StatusBadRequest)
			return
		}
		if callback.Type == slack.InteractionTypeBlockActions && opts.HandleAction != nil {
			channelID := callback.Channel.ID
			messageTS := callback.Message.Timestamp
			threadTS := callback.Message.ThreadTimestamp
			for _, action := range callback.ActionCallback.BlockActions {
				actionID, value := action.ActionID, action.Value
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), opts.HandleTimeout)
					defer cancel()
					opts.HandleAction(ctx, actionID, value, channelID, messageTS, threadTS)
				}()
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

// readVerifiedBody reads the request body and, when a signing secret is
// configured, checks the Slack request signature against it.
func readVerifiedBody(r *http.Request, secret string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if secret == "" {
		return body, nil
	}
	verifier, err := slack.NewSecretsVerifier(r.Header, secret)
	if err != nil {
		return nil, fmt.Errorf("build verifier: %w", err)
	}
	if _, err := verifier.Write(body); err != nil {
		return nil, fmt.Errorf("hash body: %w", err)
	}
	if err := verifier.Ensure(); err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}
	return body, nil
}

// inboundEvent normalizes a callback into a dispatchable Event.
// Mentions arrive twice, once as app_mention and once as message; the
// message copy is dropped so an exchange runs exactly once per text.
func inboundEvent(inner slackevents.EventsAPIInnerEvent, botUserID string) (Event, bool) {
	switch ev := inner.Data.(type) {
	case *slackevents.AppMentionEvent:
		if strings.TrimSpace(ev.BotID) != "" {
			return Event{}, false
		}
		threadTS := ev.ThreadTimeStamp
		if threadTS == "" {
			threadTS = ev.TimeStamp
		}
		return Event{
			UserID:    ev.User,
			ChannelID: ev.Channel,
			Text:      ev.Text,
			Timestamp: ev.TimeStamp,
			ThreadTS:  threadTS,
			Mention:   true,
		}, true

	case *slackevents.MessageEvent:
		if strings.TrimSpace(ev.BotID) != "" || strings.TrimSpace(ev.SubType) != "" {
			return Event{}, false
		}
		if botUserID != "" && strings.Contains(ev.Text, "<@"+botUserID+">") {
			return Event{}, false
		}
		directMsg := ev.ChannelType == "im"
		inThread := ev.ThreadTimeStamp != "" && ev.ThreadTimeStamp != ev.TimeStamp
		if !directMsg && !inThread {
			return Event{}, false
		}
		out := Event{
			UserID:    ev.User,
			ChannelID: ev.Channel,
			Text:      ev.Text,
			Timestamp: ev.TimeStamp,
			DirectMsg: directMsg,
		}
		if inThread {
			out.ThreadTS = ev.ThreadTimeStamp
		}
		return out, true

	default:
		return Event{}, false
	}
}

type ServerOptions struct {
	Listen string
	Routes RoutesOptions
}

// StartServer listens and serves in the background, shutting down when
// ctx is canceled.
func StartServer(ctx context.Context, logger *slog.Logger, opts ServerOptions) (*http.Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	listen := strings.TrimSpace(opts.Listen)
	if listen == "" {
		return nil, errors.New("empty listen address")
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, opts.Routes)

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("event_server_error", "addr", listen, "error", err.Error())
		}
	}()

	logger.Info("event_server_start",
		"addr", listen,
		"events_path", "/slack/events",
		"signature_verification", strings.TrimSpace(opts.Routes.SigningSecret) != "",
	)
	return srv, nil
}
