package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// TokenSource returns the host API credential.
type TokenSource func(ctx context.Context) (string, error)

// Session holds the token scripts must present in callback signals. Rotating
// it invalidates every signal emitted under the previous token.
type Session struct {
	mu     sync.RWMutex
	token  string
	seeded bool
}

// NewSession starts a session with a random token.
func NewSession() *Session {
	return &Session{token: uuid.NewString()}
}

// NewSessionWithToken starts a session with a known token.
func NewSessionWithToken(token string) *Session {
	if token == "" {
		return NewSession()
	}
	return &Session{token: token, seeded: true}
}

// Seed replaces the random token with the host credential from src. Until a
// call succeeds the random token stays in place and the next Seed retries.
// A seeded or rotated session is left alone.
func (s *Session) Seed(ctx context.Context, src TokenSource) error {
	if src == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return nil
	}
	token, err := src(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("host returned an empty api token")
	}
	s.token = token
	s.seeded = true
	return nil
}

// Token returns the current token.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Rotate replaces the token and returns the new one.
func (s *Session) Rotate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = uuid.NewString()
	s.seeded = true
	return s.token
}

// Validate reports whether token is the current one.
func (s *Session) Validate(token string) bool {
	current := s.Token()
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(current)) == 1
}
