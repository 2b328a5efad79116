package session

import (
	"fmt"
	"strings"
)

// Key identifies a conversation: one user in one chat on one platform.
type Key struct {
	Platform  string
	ChannelID string
	UserID    string
}

// String encodes the key as "platform:channel:user".
func (k Key) String() string {
	return k.Platform + ":" + k.ChannelID + ":" + k.UserID
}

// ParseKey decodes a key produced by Key.String. The channel part may
// itself contain colons.
func ParseKey(s string) (Key, error) {
	first := strings.Index(s, ":")
	last := strings.LastIndex(s, ":")
	if first <= 0 || last == first || last == len(s)-1 {
		return Key{}, fmt.Errorf("session: malformed key %q", s)
	}
	return Key{
		Platform:  s[:first],
		ChannelID: s[first+1 : last],
		UserID:    s[last+1:],
	}, nil
}
