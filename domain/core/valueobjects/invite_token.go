package valueobjects

import (
	"errors"
	"strings"

	pkgerrors "dclass/pkg/errors"
)

// ErrTokenLooksLikeURL is returned when a full invite link is pasted instead of its token
var ErrTokenLooksLikeURL = errors.New("invitation token must not be a URL")

// ErrEmptyToken is returned for a blank token
var ErrEmptyToken = errors.New("invitation token is empty")

// InviteToken is a credential granting collaborator access to one diagram
type InviteToken struct {
	value string
}

// NewInviteToken validates a user-supplied token before it is sent anywhere
func NewInviteToken(raw string) (InviteToken, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return InviteToken{}, pkgerrors.NewValidationCause("invalid invitation token", ErrEmptyToken)
	}
	lower := strings.ToLower(v)
	if strings.Contains(lower, "http://") || strings.Contains(lower, "https://") {
		return InviteToken{}, pkgerrors.NewValidationCause("paste only the token, not the full link", ErrTokenLooksLikeURL)
	}
	return InviteToken{value: v}, nil
}

// String returns the token value
func (t InviteToken) String() string {
	return t.value
}

// IsZero reports whether the token was never set
func (t InviteToken) IsZero() bool {
	return t.value == ""
}
