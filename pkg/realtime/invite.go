package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"

	pkgerrors "dclass/pkg/errors"
)

// InviteSession issues invitation tokens for one diagram. Only the newest
// request may set the token: issuing again supersedes the one in flight.
type InviteSession struct {
	client    *Client
	diagramID string

	mu      sync.Mutex
	current string
	token   string
}

// NewInviteSession starts an invite dialog for the client's diagram
func (c *Client) NewInviteSession() *InviteSession {
	return &InviteSession{client: c, diagramID: c.DiagramID()}
}

// Generate asks the server for a fresh token and waits for it
func (s *InviteSession) Generate(ctx context.Context) (string, error) {
	if s.diagramID == "" {
		return "", pkgerrors.NewValidation("no diagram to invite to")
	}

	s.mu.Lock()
	if s.current != "" {
		s.client.cancel(s.current, ErrSuperseded)
		s.current = ""
	}
	p, err := s.client.send(EventGenerateInvite, DiagramRef{DiagramID: s.diagramID})
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.current = p.id
	s.mu.Unlock()

	env, err := s.client.await(ctx, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == p.id {
		s.current = ""
	}
	if err != nil {
		return "", err
	}
	var created InviteCreated
	if err := env.Decode(&created); err != nil {
		return "", pkgerrors.NewRemote("malformed invite", err)
	}
	if strings.TrimSpace(created.Token) == "" {
		return "", pkgerrors.NewRemote("server returned an empty invite token", nil)
	}
	s.token = created.Token
	return created.Token, nil
}

// Token returns the last token issued in this session
func (s *InviteSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Close abandons any request still in flight
func (s *InviteSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != "" {
		s.client.cancel(s.current, ErrSuperseded)
		s.current = ""
	}
}

// IsSuperseded reports whether err came from a replaced request
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
