package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

const sessionCookie = "sid"

type api struct {
	store    *Store
	sessions *SessionManager
	hub      *Hub
	cfg      Config
	log      *slog.Logger
}

func newAPI(store *Store, sessions *SessionManager, hub *Hub, cfg Config, log *slog.Logger) *api {
	return &api{store: store, sessions: sessions, hub: hub, cfg: cfg, log: log}
}

func (a *api) routes() http.Handler {
	apiMux := http.NewServeMux()

	apiMux.HandleFunc("POST /api/register", a.handleRegister)
	apiMux.HandleFunc("POST /api/login", a.handleLogin)
	apiMux.HandleFunc("POST /api/logout", a.handleLogout)
	apiMux.HandleFunc("GET /api/me", a.handleMe)
	apiMux.HandleFunc("POST /api/change-password", a.requireAuth(a.handleChangePassword))

	apiMux.HandleFunc("GET /api/meta", a.handleMeta)
	apiMux.HandleFunc("GET /api/board", a.requireAuth(a.handleBoard))

	apiMux.HandleFunc("POST /api/lists", a.requireAuth(a.handleCreateList))
	apiMux.HandleFunc("PATCH /api/lists/{id}", a.requireAuth(a.handleRenameList))
	apiMux.HandleFunc("DELETE /api/lists/{id}", a.requireAuth(a.handleDeleteList))

	apiMux.HandleFunc("POST /api/cards", a.requireAuth(a.handleCreateCard))
	apiMux.HandleFunc("PATCH /api/cards/{id}", a.requireAuth(a.handleEditCard))
	apiMux.HandleFunc("POST /api/cards/{id}/move", a.requireAuth(a.handleMoveCard))
	apiMux.HandleFunc("POST /api/cards/{id}/archive", a.requireAuth(a.handleArchiveCard))
	apiMux.HandleFunc("POST /api/cards/{id}/unarchive", a.requireAuth(a.handleUnarchiveCard))
	apiMux.HandleFunc("DELETE /api/cards/{id}", a.requireAuth(a.handleDeleteCard))

	apiMux.HandleFunc("POST /api/labels", a.requireAuth(a.handleCreateLabel))
	apiMux.HandleFunc("PATCH /api/labels/{id}", a.requireAuth(a.handleUpdateLabel))

	mux := http.NewServeMux()
	mux.Handle("/api/", a.csrfProtect(apiMux))
	mux.HandleFunc("GET /ws", a.handleWS)
	if a.cfg.PublicDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(a.cfg.PublicDir)))
	}
	return mux
}

// csrfProtect enforces the per-session token on every mutating API call.
// Login and register are exempt because no session exists yet.
func (a *api) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodPut:
			if r.URL.Path == "/api/login" || r.URL.Path == "/api/register" {
				break
			}
			sess, ok := a.sessionFromRequest(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if r.Header.Get("X-CSRF-Token") != sess.CSRFToken {
				writeError(w, http.StatusForbidden, "Invalid CSRF token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) sessionFromRequest(r *http.Request) (Session, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return Session{}, false
	}
	return a.sessions.Lookup(cookie.Value)
}

func (a *api) currentUser(r *http.Request) (User, Session, bool) {
	sess, ok := a.sessionFromRequest(r)
	if !ok {
		return User{}, Session{}, false
	}
	user, ok := a.store.UserByID(sess.UserID)
	if !ok {
		return User{}, Session{}, false
	}
	return user, sess, true
}

func (a *api) requireAuth(next func(http.ResponseWriter, *http.Request, User, Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, sess, ok := a.currentUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next(w, r, user, sess)
	}
}

func (a *api) setSessionCookie(w http.ResponseWriter, sess Session) {
	cookie := &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.cfg.CookieSecure,
	}
	if sess.Remember {
		cookie.MaxAge = int(sessionRememberTTL.Seconds())
	}
	http.SetCookie(w, cookie)
}

func (a *api) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.cfg.CookieSecure,
		MaxAge:   -1,
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readJSON decodes the request body, rejecting oversized or malformed input.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// writeStoreError maps the store's sentinel errors onto HTTP statuses.
func (a *api) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidState):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.log.Error("store operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (a *api) writeSnapshot(w http.ResponseWriter, status int, snap Snapshot) {
	writeJSON(w, status, map[string]any{
		"ok":       true,
		"board":    snap.Board,
		"users":    snap.Users,
		"activity": snap.Activity,
	})
}

// handleWS resolves identity from the session before handing the socket to
// the hub. Anonymous sockets still get board_updated signals but do not
// appear in the roster.
func (a *api) handleWS(w http.ResponseWriter, r *http.Request) {
	var user PublicUser
	if u, _, ok := a.currentUser(r); ok {
		user = u.Public()
	}
	a.hub.HandleWS(w, r, user)
}
