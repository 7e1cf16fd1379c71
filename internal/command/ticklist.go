package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

const (
	submitActionID = "submit_ticklist"
	checkActionID  = "check_member"

	rosterFetchTimeout = 15 * time.Second
)

// Member is one roster entry in a ticklist.
type Member struct {
	ID      string
	Name    string
	Checked bool
}

// Ticklist is an interactive per-channel checklist with an expiry
// date. One ticklist is active per channel-thread at a time.
type Ticklist struct {
	ExpiryDate time.Time
	Members    []Member
	CreatedBy  string
	ChannelID  string
	ThreadTS   string
}

// RosterSource fetches the team members a new ticklist starts from.
type RosterSource interface {
	FetchMembers(ctx context.Context) ([]Member, error)
}

// HTTPRoster reads the member roster from a JSON HTTP endpoint.
type HTTPRoster struct {
	http *http.Client
	url  string
}

func NewHTTPRoster(url string, client *http.Client) (*HTTPRoster, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("roster url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: rosterFetchTimeout}
	}
	return &HTTPRoster{http: client, url: url}, nil
}

func (r *HTTPRoster) FetchMembers(ctx context.Context) ([]Member, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build roster request: %w", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch roster: http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read roster response: %w", err)
	}
	var rows []struct {
		ID     string `json:"id"`
		Fields struct {
			Name string `json:"Name"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode roster response: %w", err)
	}

	members := make([]Member, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.ID) == "" || strings.TrimSpace(row.Fields.Name) == "" {
			continue
		}
		members = append(members, Member{ID: row.ID, Name: row.Fields.Name})
	}
	return members, nil
}

// TicklistManager owns the active ticklists and their Slack messages.
type TicklistManager struct {
	mu        sync.Mutex
	active    map[string]*Ticklist
	roster    RosterSource
	messenger Messenger
	logger    *slog.Logger
}

func NewTicklistManager(roster RosterSource, messenger Messenger, logger *slog.Logger) (*TicklistManager, error) {
	if roster == nil {
		return nil, fmt.Errorf("roster source is required")
	}
	if messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TicklistManager{
		active:    make(map[string]*Ticklist),
		roster:    roster,
		messenger: messenger,
		logger:    logger,
	}, nil
}

// Command returns the !ticklist command backed by this manager.
func (m *TicklistManager) Command() Command {
	return Command{
		Name:        "ticklist",
		Description: "Create a team member ticklist with expiry date",
		Execute:     m.create,
	}
}

func (m *TicklistManager) create(ctx context.Context, args []string, req Request) error {
	if len(args) == 0 {
		m.post(ctx, req.ChannelID, req.ThreadTS,
			"Please provide an expiry date in YYYY-MM-DD format. Example: `!ticklist 2026-09-30`")
		return nil
	}
	expiry, err := time.Parse("2006-01-02", args[0])
	if err != nil {
		m.post(ctx, req.ChannelID, req.ThreadTS, "Invalid date format. Please use YYYY-MM-DD format.")
		return nil
	}

	members, err := m.roster.FetchMembers(ctx)
	if err != nil {
		m.post(ctx, req.ChannelID, req.ThreadTS, "Failed to create ticklist. Please try again later.")
		return fmt.Errorf("fetch roster: %w", err)
	}

	ticklist := &Ticklist{
		ExpiryDate: expiry,
		Members:    members,
		CreatedBy:  req.UserID,
		ChannelID:  req.ChannelID,
		ThreadTS:   req.ThreadTS,
	}
	id := ticklistID(req.ChannelID, req.ThreadTS)

	m.mu.Lock()
	m.active[id] = ticklist
	m.mu.Unlock()

	opts := []slack.MsgOption{
		slack.MsgOptionText(formatTicklist(ticklist), false),
		slack.MsgOptionBlocks(ticklistBlocks(id, ticklist)...),
	}
	if req.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(req.ThreadTS))
	}
	if _, _, err := m.messenger.PostMessageContext(ctx, req.ChannelID, opts...); err != nil {
		return fmt.Errorf("post ticklist: %w", err)
	}
	return nil
}

// HandleAction routes a block action from the interaction endpoint.
// Unknown or stale values are answered in-channel rather than erroring.
func (m *TicklistManager) HandleAction(ctx context.Context, actionID, value, channelID, messageTS, threadTS string) {
	switch actionID {
	case submitActionID:
		m.submit(ctx, strings.TrimPrefix(value, "submit_"), channelID, threadTS)
	case checkActionID:
		m.toggle(ctx, value, channelID, messageTS)
	}
}

func (m *TicklistManager) submit(ctx context.Context, id, channelID, threadTS string) {
	m.mu.Lock()
	ticklist, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()

	if !ok {
		m.post(ctx, channelID, threadTS, "This ticklist is no longer active.")
		return
	}

	lines := []string{"*Submitted Ticklist*", "Checked members:"}
	for _, member := range ticklist.Members {
		if member.Checked {
			lines = append(lines, "• "+member.Name)
		}
	}
	m.post(ctx, channelID, threadTS, strings.Join(lines, "\n"))
}

func (m *TicklistManager) toggle(ctx context.Context, value, channelID, messageTS string) {
	id, memberID, ok := parseCheckValue(value)
	if !ok {
		return
	}

	m.mu.Lock()
	ticklist, exists := m.active[id]
	if exists {
		for i := range ticklist.Members {
			if ticklist.Members[i].ID == memberID {
				ticklist.Members[i].Checked = !ticklist.Members[i].Checked
				break
			}
		}
	}
	m.mu.Unlock()

	if !exists {
		return
	}
	_, _, _, err := m.messenger.UpdateMessageContext(ctx, channelID, messageTS,
		slack.MsgOptionText(formatTicklist(ticklist), false),
		slack.MsgOptionBlocks(ticklistBlocks(id, ticklist)...),
	)
	if err != nil {
		m.logger.Warn("ticklist_update_error", "channel_id", channelID, "error", err.Error())
	}
}

func (m *TicklistManager) post(ctx context.Context, channelID, threadTS, text string) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if _, _, err := m.messenger.PostMessageContext(ctx, channelID, opts...); err != nil {
		m.logger.Warn("ticklist_post_error", "channel_id", channelID, "error", err.Error())
	}
}

func ticklistID(channelID, threadTS string) string {
	anchor := strings.TrimSpace(threadTS)
	if anchor == "" {
		anchor = "main"
	}
	return channelID + "-" + anchor
}

func parseCheckValue(value string) (id, memberID string, ok bool) {
	rest, found := strings.CutPrefix(value, "check_")
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

func formatTicklist(t *Ticklist) string {
	lines := make([]string, 0, len(t.Members)+1)
	lines = append(lines, fmt.Sprintf("*Ticklist (Expires: %s)*", t.ExpiryDate.Format("2006-01-02")))
	for _, member := range t.Members {
		mark := "⬜️"
		if member.Checked {
			mark = "✅"
		}
		lines = append(lines, mark+" "+member.Name)
	}
	return strings.Join(lines, "\n")
}

func ticklistBlocks(id string, t *Ticklist) []slack.Block {
	section := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, formatTicklist(t), false, false),
		nil, nil,
	)

	elements := make([]slack.BlockElement, 0, len(t.Members)+1)
	for _, member := range t.Members {
		elements = append(elements, slack.NewButtonBlockElement(
			checkActionID,
			"check_"+id+"_"+member.ID,
			slack.NewTextBlockObject(slack.PlainTextType, member.Name, true, false),
		))
	}
	submit := slack.NewButtonBlockElement(
		submitActionID,
		"submit_"+id,
		slack.NewTextBlockObject(slack.PlainTextType, "Submit Ticklist", true, false),
	)
	submit.Style = slack.StylePrimary
	elements = append(elements, submit)

	return []slack.Block{
		section,
		slack.NewActionBlock("ticklist_actions", elements...),
	}
}
