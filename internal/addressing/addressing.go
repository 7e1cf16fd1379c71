// Package addressing decides whether the assistant should reply to a
// thread message, based on who was most recently mentioned.
package addressing

import (
	"regexp"
	"strconv"
	"strings"
)

var mentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]+)?>`)

// Message is the slice of a platform message the heuristic needs.
type Message struct {
	Text      string
	Timestamp string
}

// Timeline holds the latest mention timestamp per category. Zero values
// mean the category was never mentioned.
type Timeline struct {
	LastBotMention  float64
	LastUserMention float64
	HasBotMention   bool
	HasUserMention  bool
}

// Analyze scans messages and tracks the latest timestamp at which the
// assistant was mentioned and the latest at which anyone else was.
// A message that mentions both the assistant and another user counts as
// a bot mention only. Scan order does not affect the result.
func Analyze(msgs []Message, botUserID string) Timeline {
	botUserID = strings.TrimSpace(botUserID)
	var tl Timeline
	for _, msg := range msgs {
		mentions := MentionUserIDs(msg.Text)
		if len(mentions) == 0 {
			continue
		}
		ts, err := strconv.ParseFloat(strings.TrimSpace(msg.Timestamp), 64)
		if err != nil {
			continue
		}
		if containsUser(mentions, botUserID) {
			if !tl.HasBotMention || ts > tl.LastBotMention {
				tl.LastBotMention = ts
				tl.HasBotMention = true
			}
			continue
		}
		if !tl.HasUserMention || ts > tl.LastUserMention {
			tl.LastUserMention = ts
			tl.HasUserMention = true
		}
	}
	return tl
}

// ShouldRespond reports whether the assistant was the most recently
// addressed party, or nobody has been explicitly addressed.
func (tl Timeline) ShouldRespond() bool {
	if !tl.HasUserMention {
		return true
	}
	return tl.HasBotMention && tl.LastBotMention > tl.LastUserMention
}

// MentionUserIDs returns the distinct user IDs mentioned in text, in
// order of first appearance.
func MentionUserIDs(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		userID := strings.TrimSpace(match[1])
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		out = append(out, userID)
	}
	return out
}

func containsUser(ids []string, userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range ids {
		if id == userID {
			return true
		}
	}
	return false
}
