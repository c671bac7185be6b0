package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionsPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "security.json")
	m, err := OpenSessions(path)
	require.NoError(t, err)

	sess, err := m.Create("user-1", false)
	require.NoError(t, err)
	require.Len(t, sess.Token, 48)
	require.Len(t, sess.CSRFToken, 48)
	require.NotEqual(t, sess.Token, sess.CSRFToken)

	reopened, err := OpenSessions(path)
	require.NoError(t, err)
	got, ok := reopened.Lookup(sess.Token)
	require.True(t, ok)
	require.Equal(t, "user-1", got.UserID)
	require.Equal(t, sess.CSRFToken, got.CSRFToken)
}

func TestExpiredSessionsDroppedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "security.json")
	m, err := OpenSessions(path)
	require.NoError(t, err)
	sess, err := m.Create("user-1", false)
	require.NoError(t, err)

	// force expiry on disk before reloading
	m.mu.Lock()
	s := m.sessions[sess.Token]
	s.ExpiresAt = time.Now().Add(-time.Minute)
	m.sessions[sess.Token] = s
	require.NoError(t, m.persistLocked())
	m.mu.Unlock()

	reopened, err := OpenSessions(path)
	require.NoError(t, err)
	_, ok := reopened.Lookup(sess.Token)
	require.False(t, ok)
}

func TestRememberSessionsLastLonger(t *testing.T) {
	m, err := OpenSessions(filepath.Join(t.TempDir(), "security.json"))
	require.NoError(t, err)

	short, err := m.Create("user-1", false)
	require.NoError(t, err)
	long, err := m.Create("user-1", true)
	require.NoError(t, err)
	require.True(t, long.ExpiresAt.After(short.ExpiresAt.Add(24*time.Hour)))
}

func TestLoginThrottleLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "security.json")
	m, err := OpenSessions(path)
	require.NoError(t, err)
	key := "127.0.0.1|ada"

	require.False(t, m.LoginBlocked(key))
	for i := 0; i < loginMaxAttempts-1; i++ {
		require.False(t, m.RecordLoginFailure(key), "attempt %d should not block", i+1)
	}
	require.True(t, m.RecordLoginFailure(key), "hitting the cap starts the block")
	require.True(t, m.LoginBlocked(key))

	// the block survives a restart
	reopened, err := OpenSessions(path)
	require.NoError(t, err)
	require.True(t, reopened.LoginBlocked(key))

	reopened.ClearLoginFailures(key)
	require.False(t, reopened.LoginBlocked(key))
}
