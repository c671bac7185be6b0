package main

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !readJSON(w, r, &req) {
		return
	}
	username := truncate(req.Username, maxUsername)
	if username == "" {
		writeError(w, http.StatusBadRequest, "Username is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.log.Error("hash password", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	user, err := a.store.CreateUser(username, string(hash), clientIP(r))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	sess, err := a.sessions.Create(user.ID, req.Remember)
	if err != nil {
		a.log.Error("create session", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	a.setSessionCookie(w, sess)
	a.log.Info("user registered", "user", user.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok":        true,
		"user":      user.Public(),
		"csrfToken": sess.CSRFToken,
	})
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !readJSON(w, r, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	ip := clientIP(r)
	// throttle key pairs the caller address with the claimed identity
	key := ip + "|" + strings.ToLower(username)

	if a.sessions.LoginBlocked(key) {
		_ = a.store.AppendAuthAudit(AuthAuditEntry{Type: "login_blocked", Username: username, Reason: "rate_limited", IP: ip})
		writeError(w, http.StatusTooManyRequests, "Too many attempts. Try again later.")
		return
	}

	user, found := a.store.UserByName(username)
	var passErr error
	if found {
		passErr = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password))
	}
	if !found || passErr != nil {
		blocked := a.sessions.RecordLoginFailure(key)
		reason := "invalid_credentials"
		if !found {
			reason = "unknown_user"
		}
		if blocked {
			reason = "rate_limited"
		}
		_ = a.store.AppendAuthAudit(AuthAuditEntry{Type: "login_failed", Username: username, Reason: reason, IP: ip})
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	a.sessions.ClearLoginFailures(key)
	sess, err := a.sessions.Create(user.ID, req.Remember)
	if err != nil {
		a.log.Error("create session", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	_ = a.store.AppendAuthAudit(AuthAuditEntry{Type: "login_success", UserID: user.ID, Username: user.Name, IP: ip})
	a.setSessionCookie(w, sess)
	a.log.Info("user logged in", "user", user.Name)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"user":      user.Public(),
		"csrfToken": sess.CSRFToken,
	})
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := a.sessionFromRequest(r); ok {
		a.sessions.Delete(sess.Token)
		if user, found := a.store.UserByID(sess.UserID); found {
			_ = a.store.AppendAuthAudit(AuthAuditEntry{Type: "logout", UserID: user.ID, Username: user.Name, IP: clientIP(r)})
		}
	}
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleMe reports the caller's identity, or nulls when anonymous so the
// client can show the login screen without treating it as an error.
func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	user, sess, ok := a.currentUser(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil, "csrfToken": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      user.Public(),
		"csrfToken": sess.CSRFToken,
	})
}

func (a *api) handleChangePassword(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		a.log.Error("hash password", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := a.store.UpdateUserPassword(user.ID, string(hash)); err != nil {
		a.writeStoreError(w, err)
		return
	}
	_ = a.store.AppendAuthAudit(AuthAuditEntry{Type: "password_changed", UserID: user.ID, Username: user.Name, IP: clientIP(r)})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
