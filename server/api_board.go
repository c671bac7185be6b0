package main

import "net/http"

func (a *api) handleMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    appName,
		"version": appVersion,
	})
}

// handleBoard returns the full snapshot plus the caller's identity and CSRF
// token, so one fetch is enough to render the whole workspace.
func (a *api) handleBoard(w http.ResponseWriter, r *http.Request, user User, sess Session) {
	snap := a.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"board":     snap.Board,
		"users":     snap.Users,
		"activity":  snap.Activity,
		"user":      user.Public(),
		"csrfToken": sess.CSRFToken,
	})
}
