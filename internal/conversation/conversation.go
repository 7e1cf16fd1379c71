package conversation

import "strings"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged message unit in a conversation.
type Turn struct {
	Role        string
	Content     string
	SpeakerName string
}

// Key identifies a conversation. ThreadTS is empty for direct messages,
// so distinct threads for the same user never share stored history.
type Key struct {
	UserID   string
	ThreadTS string
}

func NewKey(userID, threadTS string) Key {
	return Key{
		UserID:   strings.TrimSpace(userID),
		ThreadTS: strings.TrimSpace(threadTS),
	}
}

func (k Key) String() string {
	if k.ThreadTS == "" {
		return k.UserID
	}
	return k.UserID + "@" + k.ThreadTS
}
