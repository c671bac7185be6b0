package main

import "net/http"

func (a *api) handleCreateList(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	var req struct {
		Title string `json:"title"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	snap, err := a.store.CreateList(user, req.Title)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusCreated, snap)
}

func (a *api) handleRenameList(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	var req struct {
		Title string `json:"title"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	snap, err := a.store.RenameList(user, r.PathValue("id"), req.Title)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusOK, snap)
}

func (a *api) handleDeleteList(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	snap, err := a.store.DeleteList(user, r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusOK, snap)
}
