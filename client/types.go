// Package client is a Go client for the taskboard server. It keeps a local
// copy of the board fresh over WebSocket change signals, tracks which cards
// hold unseen remote edits, and turns modal-style card editing sessions into
// minimal PATCH requests.
package client

type Board struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Labels []Label         `json:"labels"`
	Lists  []List          `json:"lists"`
	Cards  map[string]Card `json:"cards"`
}

type List struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	CardIDs []string `json:"cardIds"`
}

type Card struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Checklist   []ChecklistItem `json:"checklist"`
	LabelIDs    []string        `json:"labelIds"`
	AssigneeIDs []string        `json:"assigneeIds"`
	Priority    string          `json:"priority"`
	DueDate     string          `json:"dueDate"`
	Estimate    string          `json:"estimate"`
	CreatedByID string          `json:"createdById"`
	UpdatedByID string          `json:"updatedById"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
	Archived    bool            `json:"archived"`
}

type ChecklistItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type ActivityEntry struct {
	ID        string `json:"id"`
	ActorID   string `json:"actorId"`
	ActorName string `json:"actorName"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BoardState is what subscribers receive after every refresh: the server
// snapshot plus the set of cards carrying edits this user has not looked at.
type BoardState struct {
	Board    Board
	Users    []User
	Activity []ActivityEntry
	Unseen   map[string]bool
}

type boardResponse struct {
	Board     Board           `json:"board"`
	Users     []User          `json:"users"`
	Activity  []ActivityEntry `json:"activity"`
	User      *User           `json:"user"`
	CSRFToken string          `json:"csrfToken"`
}

type authResponse struct {
	OK        bool   `json:"ok"`
	User      *User  `json:"user"`
	CSRFToken string `json:"csrfToken"`
}

type errorResponse struct {
	Error string `json:"error"`
}
