// Package session keeps the per-browser anti-forgery token.
//
// A session is created lazily the first time a request arrives without a
// valid session cookie. It carries one random token which the page embeds
// in a <meta name="csrf-token"> tag and which every state-changing request
// must echo back. Sessions live in process memory and expire after a
// configured TTL.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chirva-sf/example-php-js/internal/config"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// TokenLength is the number of random bytes in a token (64 hex characters).
const TokenLength = 32

// Session is one browser's server-side state.
type Session struct {
	ID      string
	Token   string
	Expires time.Time
}

// Manager creates, finds and expires sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]Session

	clock      clockwork.Clock
	cookieName string
	ttl        time.Duration
	secure     bool
}

func NewManager(cfg config.Session, clock clockwork.Clock) *Manager {
	return &Manager{
		sessions:   make(map[string]Session),
		clock:      clock,
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
		secure:     cfg.Secure,
	}
}

// Load returns the session named by the request's cookie, starting a new
// one (and setting its cookie on w) when there is none or it has expired.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (Session, error) {
	if s, ok := m.Lookup(r); ok {
		return s, nil
	}

	token, err := generateToken()
	if err != nil {
		return Session{}, fmt.Errorf("session.Load: %w", err)
	}

	s := Session{
		ID:      uuid.NewString(),
		Token:   token,
		Expires: m.clock.Now().Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    s.ID,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return s, nil
}

// Lookup returns the live session named by the request's cookie without
// creating one.
func (m *Manager) Lookup(r *http.Request) (Session, bool) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return Session{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[cookie.Value]
	if !ok {
		return Session{}, false
	}

	if !m.clock.Now().Before(s.Expires) {
		delete(m.sessions, s.ID)
		return Session{}, false
	}

	return s, true
}

// CleanupExpired drops every expired session and reports how many went.
func (m *Manager) CleanupExpired() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if !now.Before(s.Expires) {
			delete(m.sessions, id)
			removed++
		}
	}

	return removed
}

// Len reports the number of stored sessions, expired or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RunCleanup calls CleanupExpired every interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := m.CleanupExpired(); n > 0 {
				slog.Debug("expired sessions removed", slog.Int("count", n))
			}
		}
	}
}

func generateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
