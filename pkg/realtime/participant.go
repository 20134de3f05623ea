package realtime

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Participant is a connection present in a diagram room
type Participant struct {
	SocketID string    `json:"socketId"`
	UserID   string    `json:"userId,omitempty"`
	Username string    `json:"username,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// DisplayName returns the username, or "Usuario <socket prefix>" for anonymous guests
func (p Participant) DisplayName() string {
	if name := strings.TrimSpace(p.Username); name != "" {
		return name
	}
	id := p.SocketID
	if utf8.RuneCountInString(id) > 6 {
		id = string([]rune(id)[:6])
	}
	return "Usuario " + id
}

// Initials returns up to two upper-case initials of the username, "U" when unnamed
func (p Participant) Initials() string {
	words := strings.Fields(p.Username)
	if len(words) == 0 {
		return "U"
	}
	if len(words) > 2 {
		words = words[:2]
	}
	var b strings.Builder
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
