package main

import "net/http"

func (a *api) handleCreateLabel(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	snap, err := a.store.CreateLabel(user, req.Name, req.Color)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusCreated, snap)
}

func (a *api) handleUpdateLabel(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	var req struct {
		Name  *string `json:"name"`
		Color *string `json:"color"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	snap, err := a.store.UpdateLabel(user, r.PathValue("id"), req.Name, req.Color)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusOK, snap)
}
