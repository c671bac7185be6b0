package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

func (a *api) handleCreateCard(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	var req struct {
		ListID string `json:"listId"`
		Title  string `json:"title"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	snap, err := a.store.CreateCard(user, req.ListID, req.Title)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusCreated, snap)
}

// cardPatchRequest mirrors CardPatch on the wire. assigneeId is the legacy
// single-assignee field older clients still send; it folds into assigneeIds.
type cardPatchRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Checklist   *[]ChecklistItem `json:"checklist"`
	LabelIDs    *[]string        `json:"labelIds"`
	Priority    *string          `json:"priority"`
	DueDate     *string          `json:"dueDate"`
	Estimate    json.RawMessage  `json:"estimate"`
	AssigneeIDs *[]string        `json:"assigneeIds"`
	AssigneeID  *string          `json:"assigneeId"`
}

func (a *api) handleEditCard(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	var req cardPatchRequest
	if !readJSON(w, r, &req) {
		return
	}
	patch := CardPatch{
		Title:       req.Title,
		Description: req.Description,
		Checklist:   req.Checklist,
		LabelIDs:    req.LabelIDs,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		AssigneeIDs: req.AssigneeIDs,
	}
	if len(req.Estimate) > 0 {
		estimate, ok := decodeEstimate(req.Estimate)
		if !ok {
			writeError(w, http.StatusBadRequest, "Estimate effort must be hours (number)")
			return
		}
		patch.Estimate = &estimate
	}
	if patch.AssigneeIDs == nil && req.AssigneeID != nil {
		ids := []string{}
		if *req.AssigneeID != "" {
			ids = []string{*req.AssigneeID}
		}
		patch.AssigneeIDs = &ids
	}
	snap, err := a.store.EditCard(user, r.PathValue("id"), patch)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusOK, snap)
}

// decodeEstimate accepts a JSON number, a numeric string, or null to clear.
func decodeEstimate(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	var null any
	if err := json.Unmarshal(raw, &null); err == nil && null == nil {
		return "", true
	}
	return "", false
}

func (a *api) handleMoveCard(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	var req struct {
		TargetListID string          `json:"targetListId"`
		Position     json.RawMessage `json:"position"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	// anything but a whole number means append
	var position *int
	var n int
	if len(req.Position) > 0 && json.Unmarshal(req.Position, &n) == nil {
		position = &n
	}
	snap, err := a.store.MoveCard(user, r.PathValue("id"), req.TargetListID, position)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusOK, snap)
}

func (a *api) handleArchiveCard(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	snap, err := a.store.ArchiveCard(user, r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusOK, snap)
}

func (a *api) handleUnarchiveCard(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	snap, err := a.store.UnarchiveCard(user, r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusOK, snap)
}

func (a *api) handleDeleteCard(w http.ResponseWriter, r *http.Request, user User, _ Session) {
	snap, err := a.store.DeleteCard(user, r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeSnapshot(w, http.StatusOK, snap)
}
