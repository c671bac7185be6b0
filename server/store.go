package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidState = errors.New("invalid state")
)

// storeError carries a user-facing message while staying matchable against
// the sentinel via errors.Is.
type storeError struct {
	sentinel error
	msg      string
}

func (e *storeError) Error() string { return e.msg }
func (e *storeError) Unwrap() error { return e.sentinel }

func invalidInput(msg string) error { return &storeError{ErrInvalidInput, msg} }
func invalidState(msg string) error { return &storeError{ErrInvalidState, msg} }

const (
	isoFormat        = "2006-01-02T15:04:05.000Z"
	defaultLabelHex  = "#d9d9d9"
	maxActivity      = 120
	maxAuthAudit     = 500
	maxCardTitle     = 100
	maxDescription   = 500
	maxChecklistLen  = 30
	maxChecklistText = 120
	maxCardLabels    = 12
	maxListTitle     = 60
	maxLabelName     = 30
	maxUsername      = 30
)

var (
	hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	dueDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

func nowISO() string { return time.Now().UTC().Format(isoFormat) }

func makeID(prefix string) string { return prefix + "-" + uuid.NewString() }

// truncate trims surrounding whitespace and hard-caps length in runes.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > max {
		return string(r[:max])
	}
	return s
}

// Store owns the whole-document JSON file. Every mutation takes the write
// lock across validate -> mutate -> persist, so the file on disk always
// reflects one complete prior state and there is no partial-application path.
type Store struct {
	path string

	mu  sync.RWMutex
	doc Document

	// notify fires after every successful persist; main wires it to the hub.
	notify func()
}

func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, notify: func() {}}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.doc = seedDocument()
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	normalize(&s.doc)
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// OnChange registers the post-persist hook. Must be called before serving.
func (s *Store) OnChange(fn func()) { s.notify = fn }

func seedDocument() Document {
	return Document{
		Users:     []User{},
		Activity:  []ActivityEntry{},
		AuthAudit: []AuthAuditEntry{},
		Board: Board{
			ID:     "board-1",
			Name:   "Team Board",
			Labels: []Label{},
			Lists: []List{
				{ID: "list-todo", Title: "To Do", CardIDs: []string{}},
				{ID: "list-doing", Title: "Doing", CardIDs: []string{}},
				{ID: "list-done", Title: "Done", CardIDs: []string{}},
			},
			Cards: map[string]Card{},
		},
	}
}

var validPriorities = []string{"", "low", "medium", "high", "critical"}

// normalize repairs a document loaded from disk: older or hand-edited files
// may miss arrays, carry bad colors, or use the legacy single assigneeId.
func normalize(doc *Document) {
	if doc.Users == nil {
		doc.Users = []User{}
	}
	for i := range doc.Users {
		if doc.Users[i].PasswordAlgo == "" && doc.Users[i].PasswordHash != "" {
			doc.Users[i].PasswordAlgo = "bcrypt"
		}
	}
	if doc.Activity == nil {
		doc.Activity = []ActivityEntry{}
	}
	if doc.AuthAudit == nil {
		doc.AuthAudit = []AuthAuditEntry{}
	}
	if doc.Board.ID == "" {
		doc.Board = seedDocument().Board
		return
	}
	if doc.Board.Labels == nil {
		doc.Board.Labels = []Label{}
	}
	for i := range doc.Board.Labels {
		if !hexColorRe.MatchString(doc.Board.Labels[i].Color) {
			doc.Board.Labels[i].Color = defaultLabelHex
		}
	}
	if doc.Board.Lists == nil {
		doc.Board.Lists = []List{}
	}
	for i := range doc.Board.Lists {
		if doc.Board.Lists[i].CardIDs == nil {
			doc.Board.Lists[i].CardIDs = []string{}
		}
	}
	if doc.Board.Cards == nil {
		doc.Board.Cards = map[string]Card{}
	}
	for id, card := range doc.Board.Cards {
		if card.Checklist == nil {
			card.Checklist = []ChecklistItem{}
		}
		if card.LabelIDs == nil {
			card.LabelIDs = []string{}
		}
		if card.AssigneeIDs == nil {
			card.AssigneeIDs = []string{}
		}
		if !slices.Contains(validPriorities, card.Priority) {
			card.Priority = ""
		}
		if card.CreatedAt == "" {
			if card.UpdatedAt != "" {
				card.CreatedAt = card.UpdatedAt
			} else {
				card.CreatedAt = nowISO()
			}
		}
		if card.UpdatedByID == "" {
			card.UpdatedByID = card.CreatedByID
		}
		if card.ListEnteredAt == "" {
			card.ListEnteredAt = card.CreatedAt
		}
		if card.TimeByListMs == nil {
			card.TimeByListMs = map[string]int64{}
		}
		doc.Board.Cards[id] = card
	}
}

// persistLocked writes the full document atomically: marshal, write a temp
// file next to the target, rename over it. Callers must hold the write lock.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) snapshotLocked() Snapshot {
	b := Board{
		ID:     s.doc.Board.ID,
		Name:   s.doc.Board.Name,
		Labels: slices.Clone(s.doc.Board.Labels),
		Lists:  make([]List, len(s.doc.Board.Lists)),
		Cards:  make(map[string]Card, len(s.doc.Board.Cards)),
	}
	for i, l := range s.doc.Board.Lists {
		l.CardIDs = slices.Clone(l.CardIDs)
		b.Lists[i] = l
	}
	for id, c := range s.doc.Board.Cards {
		c.Checklist = slices.Clone(c.Checklist)
		c.LabelIDs = slices.Clone(c.LabelIDs)
		c.AssigneeIDs = slices.Clone(c.AssigneeIDs)
		tm := make(map[string]int64, len(c.TimeByListMs))
		for k, v := range c.TimeByListMs {
			tm[k] = v
		}
		c.TimeByListMs = tm
		b.Cards[id] = c
	}
	users := make([]PublicUser, 0, len(s.doc.Users))
	for _, u := range s.doc.Users {
		users = append(users, u.Public())
	}
	return Snapshot{Board: b, Users: users, Activity: slices.Clone(s.doc.Activity)}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) logActivityLocked(actor User, message string) {
	name := actor.Name
	if name == "" {
		name = "System"
	}
	s.doc.Activity = append(s.doc.Activity, ActivityEntry{
		ID:        makeID("activity"),
		ActorID:   actor.ID,
		ActorName: name,
		Message:   message,
		CreatedAt: nowISO(),
	})
	if n := len(s.doc.Activity); n > maxActivity {
		s.doc.Activity = slices.Clone(s.doc.Activity[n-maxActivity:])
	}
}

func (s *Store) appendAuthAuditLocked(e AuthAuditEntry) {
	e.ID = makeID("auth")
	e.At = nowISO()
	s.doc.AuthAudit = append(s.doc.AuthAudit, e)
	if n := len(s.doc.AuthAudit); n > maxAuthAudit {
		s.doc.AuthAudit = slices.Clone(s.doc.AuthAudit[n-maxAuthAudit:])
	}
}

// AppendAuthAudit records an auth event (failed logins included) and
// persists. Audit writes go through the same whole-document path as board
// mutations.
func (s *Store) AppendAuthAudit(e AuthAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAuthAuditLocked(e)
	return s.persistLocked()
}

// --- users ---

func (s *Store) UserByID(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.doc.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func (s *Store) UserByName(name string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.doc.Users {
		if strings.EqualFold(u.Name, name) {
			return u, true
		}
	}
	return User{}, false
}

// CreateUser registers a new account, logging the join to the activity feed
// and the auth audit. The caller has already hashed the password.
func (s *Store) CreateUser(name, passwordHash, ip string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.doc.Users {
		if strings.EqualFold(u.Name, name) {
			s.appendAuthAuditLocked(AuthAuditEntry{Type: "register_failed", Username: name, Reason: "username_exists", IP: ip})
			if err := s.persistLocked(); err != nil {
				return User{}, err
			}
			return User{}, invalidInput("Username already exists")
		}
	}
	user := User{ID: makeID("user"), Name: name, PasswordHash: passwordHash, PasswordAlgo: "bcrypt"}
	s.doc.Users = append(s.doc.Users, user)
	s.logActivityLocked(user, "joined the workspace")
	s.appendAuthAuditLocked(AuthAuditEntry{Type: "register_success", UserID: user.ID, Username: user.Name, IP: ip})
	if err := s.persistLocked(); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Store) UpdateUserPassword(userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Users {
		if s.doc.Users[i].ID == userID {
			s.doc.Users[i].PasswordHash = passwordHash
			s.doc.Users[i].PasswordAlgo = "bcrypt"
			return s.persistLocked()
		}
	}
	return ErrNotFound
}

// --- lists ---

func (s *Store) findListLocked(id string) *List {
	for i := range s.doc.Board.Lists {
		if s.doc.Board.Lists[i].ID == id {
			return &s.doc.Board.Lists[i]
		}
	}
	return nil
}

func (s *Store) CreateList(actor User, title string) (Snapshot, error) {
	title = truncate(title, maxListTitle)
	if title == "" {
		return Snapshot{}, invalidInput("List title is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Board.Lists = append(s.doc.Board.Lists, List{ID: makeID("list"), Title: title, CardIDs: []string{}})
	s.logActivityLocked(actor, fmt.Sprintf("created list %q", title))
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

func (s *Store) RenameList(actor User, listID, title string) (Snapshot, error) {
	title = truncate(title, maxListTitle)
	if title == "" {
		return Snapshot{}, invalidInput("List title is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.findListLocked(listID)
	if list == nil {
		return Snapshot{}, ErrNotFound
	}
	oldTitle := list.Title
	list.Title = title
	s.logActivityLocked(actor, fmt.Sprintf("renamed list %q to %q", oldTitle, title))
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

// DeleteList removes the list and hard-deletes every member card.
func (s *Store) DeleteList(actor User, listID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.doc.Board.Lists, func(l List) bool { return l.ID == listID })
	if idx == -1 {
		return Snapshot{}, ErrNotFound
	}
	removed := s.doc.Board.Lists[idx]
	s.doc.Board.Lists = slices.Delete(s.doc.Board.Lists, idx, idx+1)
	for _, cardID := range removed.CardIDs {
		delete(s.doc.Board.Cards, cardID)
	}
	s.logActivityLocked(actor, fmt.Sprintf("deleted list %q", removed.Title))
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

// --- cards ---

// accumulateListTime folds the open interval since listEnteredAt into the
// per-list counter. Only closed intervals are ever persisted.
func accumulateListTime(card *Card, listID string) {
	if listID == "" {
		return
	}
	entered := card.ListEnteredAt
	if entered == "" {
		entered = card.CreatedAt
	}
	t, err := time.Parse(isoFormat, entered)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, entered); err != nil {
			return
		}
	}
	delta := time.Since(t).Milliseconds()
	if delta < 0 {
		delta = 0
	}
	if card.TimeByListMs == nil {
		card.TimeByListMs = map[string]int64{}
	}
	card.TimeByListMs[listID] += delta
}

func (s *Store) CreateCard(actor User, listID, title string) (Snapshot, error) {
	title = truncate(title, maxCardTitle)
	if listID == "" || title == "" {
		return Snapshot{}, invalidInput("listId and title are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.findListLocked(listID)
	if list == nil {
		return Snapshot{}, ErrNotFound
	}
	now := nowISO()
	card := Card{
		ID:            makeID("card"),
		Title:         title,
		Checklist:     []ChecklistItem{},
		LabelIDs:      []string{},
		AssigneeIDs:   []string{actor.ID},
		ListEnteredAt: now,
		TimeByListMs:  map[string]int64{},
		CreatedByID:   actor.ID,
		CreatedByName: actor.Name,
		UpdatedByID:   actor.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.doc.Board.Cards[card.ID] = card
	list.CardIDs = slices.Insert(list.CardIDs, 0, card.ID)
	s.logActivityLocked(actor, fmt.Sprintf("added card %q to %q", title, list.Title))
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

// CardPatch carries the optional fields of a card edit. Nil means the field
// was absent from the request and stays untouched.
type CardPatch struct {
	Title       *string
	Description *string
	Checklist   *[]ChecklistItem
	LabelIDs    *[]string
	Priority    *string
	DueDate     *string
	Estimate    *string
	AssigneeIDs *[]string
}

// EditCard applies a field-wise patch. Each present field is validated
// independently; only values that actually differ contribute to the activity
// message.
func (s *Store) EditCard(actor User, cardID string, patch CardPatch) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.doc.Board.Cards[cardID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if card.Archived {
		return Snapshot{}, invalidState("Cannot edit archived card")
	}
	var changes []string

	if patch.Title != nil {
		title := truncate(*patch.Title, maxCardTitle)
		if title == "" {
			return Snapshot{}, invalidInput("Card title cannot be empty")
		}
		if card.Title != title {
			changes = append(changes, fmt.Sprintf("renamed card to %q", title))
		}
		card.Title = title
	}
	if patch.Description != nil {
		desc := *patch.Description
		if r := []rune(desc); len(r) > maxDescription {
			desc = string(r[:maxDescription])
		}
		if card.Description != desc {
			changes = append(changes, "updated card description")
		}
		card.Description = desc
	}
	if patch.Checklist != nil {
		items := *patch.Checklist
		if len(items) > maxChecklistLen {
			items = items[:maxChecklistLen]
		}
		next := make([]ChecklistItem, 0, len(items))
		for _, item := range items {
			text := truncate(item.Text, maxChecklistText)
			if text == "" {
				continue
			}
			id := item.ID
			if id == "" {
				id = makeID("chk")
			}
			next = append(next, ChecklistItem{ID: id, Text: text, Done: item.Done})
		}
		if !cmp.Equal(card.Checklist, next) {
			changes = append(changes, "updated checklist")
		}
		card.Checklist = next
	}
	if patch.LabelIDs != nil {
		valid := make(map[string]bool, len(s.doc.Board.Labels))
		for _, l := range s.doc.Board.Labels {
			valid[l.ID] = true
		}
		// unknown label ids are dropped silently, duplicates collapse
		next := make([]string, 0, len(*patch.LabelIDs))
		for _, id := range *patch.LabelIDs {
			if valid[id] && !slices.Contains(next, id) {
				next = append(next, id)
			}
		}
		if len(next) > maxCardLabels {
			next = next[:maxCardLabels]
		}
		if !cmp.Equal(card.LabelIDs, next) {
			changes = append(changes, "updated labels")
		}
		card.LabelIDs = next
	}
	if patch.Priority != nil {
		priority := *patch.Priority
		if !slices.Contains(validPriorities, priority) {
			return Snapshot{}, invalidInput("Invalid priority")
		}
		if card.Priority != priority {
			if priority != "" {
				changes = append(changes, "set priority to "+priority)
			} else {
				changes = append(changes, "cleared priority")
			}
		}
		card.Priority = priority
	}
	if patch.DueDate != nil {
		dueDate := *patch.DueDate
		if dueDate != "" && !dueDateRe.MatchString(dueDate) {
			return Snapshot{}, invalidInput("Invalid due date")
		}
		if card.DueDate != dueDate {
			if dueDate != "" {
				changes = append(changes, "updated due date")
			} else {
				changes = append(changes, "cleared due date")
			}
		}
		card.DueDate = dueDate
	}
	if patch.Estimate != nil {
		raw := strings.TrimSpace(*patch.Estimate)
		estimate := ""
		if raw != "" {
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsInf(n, 0) || math.IsNaN(n) || n < 0 {
				return Snapshot{}, invalidInput("Estimate effort must be hours (number)")
			}
			estimate = strconv.FormatFloat(math.Round(n*100)/100, 'f', -1, 64)
		}
		if card.Estimate != estimate {
			if estimate != "" {
				changes = append(changes, "updated estimate effort")
			} else {
				changes = append(changes, "cleared estimate effort")
			}
		}
		card.Estimate = estimate
	}
	if patch.AssigneeIDs != nil {
		next := make([]string, 0, len(*patch.AssigneeIDs))
		for _, id := range *patch.AssigneeIDs {
			if id != "" && !slices.Contains(next, id) {
				next = append(next, id)
			}
		}
		for _, id := range next {
			known := slices.ContainsFunc(s.doc.Users, func(u User) bool { return u.ID == id })
			if !known {
				return Snapshot{}, invalidInput("Invalid assignee")
			}
		}
		if !cmp.Equal(card.AssigneeIDs, next) {
			if len(next) > 0 {
				changes = append(changes, "updated assignees")
			} else {
				changes = append(changes, "cleared assignees")
			}
		}
		card.AssigneeIDs = next
	}

	card.UpdatedByID = actor.ID
	card.UpdatedAt = nowISO()
	s.doc.Board.Cards[cardID] = card
	if len(changes) > 0 {
		s.logActivityLocked(actor, fmt.Sprintf("%s (%s)", strings.Join(changes, "; "), card.Title))
	}
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

// MoveCard removes the card from whichever list holds it, folds the elapsed
// time into that list's counter, and inserts at the clamped position in the
// target list. A nil position appends. Two concurrent movers race on index
// semantics; last writer wins on ordering and no conflict is reported.
func (s *Store) MoveCard(actor User, cardID, targetListID string, position *int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.doc.Board.Cards[cardID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if card.Archived {
		return Snapshot{}, invalidState("Cannot move archived card")
	}
	target := s.findListLocked(targetListID)
	if target == nil {
		return Snapshot{}, invalidInput("Invalid target list")
	}
	var source *List
	for i := range s.doc.Board.Lists {
		l := &s.doc.Board.Lists[i]
		if j := slices.Index(l.CardIDs, cardID); j != -1 {
			source = l
			l.CardIDs = slices.Delete(l.CardIDs, j, j+1)
			break
		}
	}
	if source == nil {
		return Snapshot{}, ErrNotFound
	}
	accumulateListTime(&card, source.ID)
	insertAt := len(target.CardIDs)
	if position != nil {
		insertAt = max(0, min(*position, len(target.CardIDs)))
	}
	target.CardIDs = slices.Insert(target.CardIDs, insertAt, cardID)
	card.ListEnteredAt = nowISO()
	card.UpdatedByID = actor.ID
	card.UpdatedAt = nowISO()
	s.doc.Board.Cards[cardID] = card
	s.logActivityLocked(actor, fmt.Sprintf("moved %q to %q", card.Title, target.Title))
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

func (s *Store) ArchiveCard(actor User, cardID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.doc.Board.Cards[cardID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if card.Archived {
		return Snapshot{}, invalidState("Card already archived")
	}
	var source *List
	for i := range s.doc.Board.Lists {
		l := &s.doc.Board.Lists[i]
		if j := slices.Index(l.CardIDs, cardID); j != -1 {
			source = l
			l.CardIDs = slices.Delete(l.CardIDs, j, j+1)
			break
		}
	}
	if source != nil {
		accumulateListTime(&card, source.ID)
		card.ArchivedFromListID = source.ID
	}
	card.Archived = true
	card.ArchivedAt = nowISO()
	card.ArchivedByID = actor.ID
	card.UpdatedByID = actor.ID
	card.UpdatedAt = nowISO()
	s.doc.Board.Cards[cardID] = card
	s.logActivityLocked(actor, fmt.Sprintf("archived card %q", card.Title))
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

// UnarchiveCard restores to the archive source list when it still exists,
// otherwise to the first list not titled "Done", otherwise to the first list.
func (s *Store) UnarchiveCard(actor User, cardID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.doc.Board.Cards[cardID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if !card.Archived {
		return Snapshot{}, invalidState("Card is not archived")
	}
	target := s.findListLocked(card.ArchivedFromListID)
	if target == nil {
		for i := range s.doc.Board.Lists {
			if !strings.EqualFold(s.doc.Board.Lists[i].Title, "done") {
				target = &s.doc.Board.Lists[i]
				break
			}
		}
		if target == nil && len(s.doc.Board.Lists) > 0 {
			target = &s.doc.Board.Lists[0]
		}
	}
	if target == nil {
		return Snapshot{}, invalidState("No list available to restore card")
	}
	target.CardIDs = slices.Insert(target.CardIDs, 0, cardID)
	card.Archived = false
	card.ArchivedAt = ""
	card.ArchivedByID = ""
	card.ArchivedFromListID = ""
	card.ListEnteredAt = nowISO()
	card.UpdatedByID = actor.ID
	card.UpdatedAt = nowISO()
	s.doc.Board.Cards[cardID] = card
	s.logActivityLocked(actor, fmt.Sprintf("restored archived card %q to %q", card.Title, target.Title))
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

func (s *Store) DeleteCard(actor User, cardID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.doc.Board.Cards[cardID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	delete(s.doc.Board.Cards, cardID)
	for i := range s.doc.Board.Lists {
		l := &s.doc.Board.Lists[i]
		l.CardIDs = slices.DeleteFunc(l.CardIDs, func(id string) bool { return id == cardID })
	}
	s.logActivityLocked(actor, fmt.Sprintf("deleted card %q", card.Title))
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

// --- labels ---

func (s *Store) CreateLabel(actor User, name, color string) (Snapshot, error) {
	name = truncate(name, maxLabelName)
	if name == "" {
		return Snapshot{}, invalidInput("Label name is required")
	}
	if !hexColorRe.MatchString(color) {
		color = defaultLabelHex
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.doc.Board.Labels {
		if strings.EqualFold(l.Name, name) {
			return Snapshot{}, invalidInput("Label already exists")
		}
	}
	s.doc.Board.Labels = append(s.doc.Board.Labels, Label{ID: makeID("label"), Name: name, Color: color})
	s.logActivityLocked(actor, fmt.Sprintf("created label %q", name))
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

// UpdateLabel edits name and/or color; nil keeps the current value. Unlike
// create, an explicitly bad color here is rejected rather than defaulted.
func (s *Store) UpdateLabel(actor User, labelID string, name, color *string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.doc.Board.Labels, func(l Label) bool { return l.ID == labelID })
	if idx == -1 {
		return Snapshot{}, ErrNotFound
	}
	label := &s.doc.Board.Labels[idx]
	nextName := label.Name
	if name != nil {
		nextName = truncate(*name, maxLabelName)
	}
	nextColor := label.Color
	if color != nil {
		nextColor = *color
	}
	if nextName == "" {
		return Snapshot{}, invalidInput("Label name is required")
	}
	if !hexColorRe.MatchString(nextColor) {
		return Snapshot{}, invalidInput("Invalid label color")
	}
	for _, l := range s.doc.Board.Labels {
		if l.ID != labelID && strings.EqualFold(l.Name, nextName) {
			return Snapshot{}, invalidInput("Label already exists")
		}
	}
	oldName := label.Name
	label.Name = nextName
	label.Color = nextColor
	s.logActivityLocked(actor, fmt.Sprintf("updated label %q", oldName))
	if err := s.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}
