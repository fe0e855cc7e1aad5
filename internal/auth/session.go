// Package auth keeps the signed-in user's session in the local cache.
//
// Credentials are not checked here; the session only records who is
// working so tasks can carry a creator and sign-out can be honoured.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldwork/tasksync/internal/cache"
	"github.com/fieldwork/tasksync/internal/schema"
)

// SessionKey is the cache key holding the session.
const SessionKey = "@session"

// Session identifies the signed-in user.
type Session struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	SignedInAt time.Time `json:"signedInAt"`
}

// Sessions stores a single session in a cache KV.
type Sessions struct {
	kv cache.KV
}

// NewSessions returns a session store on kv.
func NewSessions(kv cache.KV) *Sessions {
	return &Sessions{kv: kv}
}

// UserIDFor derives a stable user id from an email address, so signing in
// again on another device yields the same creator id.
func UserIDFor(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(strings.TrimSpace(email)))).String()
}

// Login records a session for email, replacing any existing one.
func (s *Sessions) Login(ctx context.Context, email string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return Session{}, fmt.Errorf("invalid email %q", email)
	}

	session := Session{
		UserID:     UserIDFor(email),
		Email:      email,
		SignedInAt: time.Now().UTC(),
	}
	data, err := json.Marshal(session)
	if err != nil {
		return Session{}, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.kv.Set(ctx, SessionKey, data); err != nil {
		return Session{}, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// Current returns the stored session. A missing or unreadable session is
// reported as schema.ErrNotAuthenticated.
func (s *Sessions) Current(ctx context.Context) (Session, error) {
	data, err := s.kv.Get(ctx, SessionKey)
	if errors.Is(err, cache.ErrNotFound) {
		return Session{}, schema.ErrNotAuthenticated
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil || session.UserID == "" {
		return Session{}, schema.ErrNotAuthenticated
	}
	return session, nil
}

// CurrentUser returns the signed-in user id, if any.
func (s *Sessions) CurrentUser(ctx context.Context) (string, bool) {
	session, err := s.Current(ctx)
	if err != nil {
		return "", false
	}
	return session.UserID, true
}

// SignOut forgets the session.
func (s *Sessions) SignOut(ctx context.Context) error {
	if err := s.kv.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
