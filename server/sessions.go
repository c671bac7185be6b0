package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"
)

const (
	sessionTTL         = 12 * time.Hour
	sessionRememberTTL = 30 * 24 * time.Hour
	loginWindow        = 10 * time.Minute
	loginMaxAttempts   = 8
	loginBlock         = 15 * time.Minute
)

type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CSRFToken string    `json:"csrfToken"`
	Remember  bool      `json:"remember"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type loginAttempt struct {
	Count        int       `json:"count"`
	FirstAt      time.Time `json:"firstAt"`
	BlockedUntil time.Time `json:"blockedUntil"`
}

// SessionManager keeps sessions and login throttling in memory and mirrors
// them to a small sidecar file, so restarts do not log everyone out or forget
// an active block.
type SessionManager struct {
	path string

	mu       sync.Mutex
	sessions map[string]Session
	attempts map[string]loginAttempt
}

type sessionFile struct {
	Sessions      map[string]Session      `json:"sessions"`
	LoginAttempts map[string]loginAttempt `json:"loginAttempts"`
}

func OpenSessions(path string) (*SessionManager, error) {
	m := &SessionManager{
		path:     path,
		sessions: map[string]Session{},
		attempts: map[string]loginAttempt{},
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	now := time.Now()
	for token, sess := range f.Sessions {
		if sess.ExpiresAt.After(now) {
			sess.Token = token
			m.sessions[token] = sess
		}
	}
	for key, att := range f.LoginAttempts {
		if att.BlockedUntil.After(now) || now.Sub(att.FirstAt) < loginWindow {
			m.attempts[key] = att
		}
	}
	return m, nil
}

func randomToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func (m *SessionManager) persistLocked() error {
	f := sessionFile{Sessions: m.sessions, LoginAttempts: m.attempts}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

// Create issues a fresh session with its own CSRF token.
func (m *SessionManager) Create(userID string, remember bool) (Session, error) {
	ttl := sessionTTL
	if remember {
		ttl = sessionRememberTTL
	}
	sess := Session{
		Token:     randomToken(),
		UserID:    userID,
		CSRFToken: randomToken(),
		Remember:  remember,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.Token] = sess
	return sess, m.persistLocked()
}

// Lookup returns the session for a cookie token, evicting it when expired.
func (m *SessionManager) Lookup(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return Session{}, false
	}
	if !sess.ExpiresAt.After(time.Now()) {
		delete(m.sessions, token)
		_ = m.persistLocked()
		return Session{}, false
	}
	return sess, true
}

func (m *SessionManager) Delete(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; ok {
		delete(m.sessions, token)
		_ = m.persistLocked()
	}
}

// LoginBlocked reports whether the rate-limit key (ip|username) is currently
// blocked after too many failures.
func (m *SessionManager) LoginBlocked(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	att, ok := m.attempts[key]
	return ok && att.BlockedUntil.After(time.Now())
}

// RecordLoginFailure counts a failed attempt within the rolling window and
// starts a block once the cap is hit. Returns true when the key is now
// blocked.
func (m *SessionManager) RecordLoginFailure(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	att, ok := m.attempts[key]
	if !ok || now.Sub(att.FirstAt) > loginWindow {
		att = loginAttempt{FirstAt: now}
	}
	att.Count++
	if att.Count >= loginMaxAttempts {
		att.BlockedUntil = now.Add(loginBlock)
	}
	m.attempts[key] = att
	_ = m.persistLocked()
	return att.BlockedUntil.After(now)
}

// ClearLoginFailures forgets throttling state for a key after a successful
// login.
func (m *SessionManager) ClearLoginFailures(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[key]; ok {
		delete(m.attempts, key)
		_ = m.persistLocked()
	}
}
