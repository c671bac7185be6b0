package main

// Document is the whole durable store: one JSON file, rewritten atomically on
// every mutation. Everything the board needs lives in here.
type Document struct {
	Users     []User           `json:"users"`
	Activity  []ActivityEntry  `json:"activity"`
	AuthAudit []AuthAuditEntry `json:"authAudit"`
	Board     Board            `json:"board"`
}

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

	CreatedByID   string `json:"createdById"`
	CreatedByName string `json:"createdByName"`
	CreatedAt     string `json:"createdAt"`
	UpdatedByID   string `json:"updatedById"`
	UpdatedAt     string `json:"updatedAt"`

	// ListEnteredAt marks when the card last entered its current list. The
	// open interval since then is never persisted into TimeByListMs; readers
	// compute it live.
	ListEnteredAt string           `json:"listEnteredAt"`
	TimeByListMs  map[string]int64 `json:"timeByListMs"`

	Archived           bool   `json:"archived"`
	ArchivedAt         string `json:"archivedAt"`
	ArchivedByID       string `json:"archivedById"`
	ArchivedFromListID string `json:"archivedFromListId"`
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

type AuthAuditEntry struct {
	ID       string `json:"id"`
	At       string `json:"at"`
	IP       string `json:"ip"`
	Type     string `json:"type"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PasswordHash string `json:"passwordHash"`
	PasswordAlgo string `json:"passwordAlgo"`
}

// PublicUser is the identity shape exposed to clients and the live roster.
type PublicUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (u User) Public() PublicUser { return PublicUser{ID: u.ID, Name: u.Name} }

// Snapshot is the full payload returned after any read or mutation: clients
// always re-fetch this whole shape rather than applying deltas.
type Snapshot struct {
	Board    Board           `json:"board"`
	Users    []PublicUser    `json:"users"`
	Activity []ActivityEntry `json:"activity"`
}
