package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	return s
}

func addTestUser(t *testing.T, s *Store, name string) User {
	t.Helper()
	u, err := s.CreateUser(name, "x", "127.0.0.1")
	require.NoError(t, err)
	return u
}

func firstCardID(snap Snapshot, listID string) string {
	for _, l := range snap.Board.Lists {
		if l.ID == listID && len(l.CardIDs) > 0 {
			return l.CardIDs[0]
		}
	}
	return ""
}

func TestOpenStoreSeedsBoard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	s, err := OpenStore(path)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Equal(t, "Team Board", snap.Board.Name)
	require.Len(t, snap.Board.Lists, 3)
	require.Equal(t, "To Do", snap.Board.Lists[0].Title)
	require.Equal(t, "Done", snap.Board.Lists[2].Title)

	// seed is flushed to disk immediately
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, "board-1", doc.Board.ID)
}

func TestPersistSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	s, err := OpenStore(path)
	require.NoError(t, err)
	user := addTestUser(t, s, "ada")
	before, err := s.CreateCard(user, "list-todo", "Write parser")
	require.NoError(t, err)

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	after := reopened.Snapshot()
	if diff := cmp.Diff(before.Board, after.Board); diff != "" {
		t.Fatalf("board changed across reopen:\n%s", diff)
	}

	// the temp file from atomic writes never lingers
	_, err = os.Stat(path + ".tmp")
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCreateCardInsertsAtHead(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	_, err := s.CreateCard(user, "list-todo", "first")
	require.NoError(t, err)
	snap, err := s.CreateCard(user, "list-todo", "second")
	require.NoError(t, err)

	list := snap.Board.Lists[0]
	require.Len(t, list.CardIDs, 2)
	require.Equal(t, "second", snap.Board.Cards[list.CardIDs[0]].Title)

	card := snap.Board.Cards[list.CardIDs[0]]
	require.Equal(t, []string{user.ID}, card.AssigneeIDs)
	require.Equal(t, user.ID, card.CreatedByID)
	require.Equal(t, card.CreatedAt, card.UpdatedAt)
	require.NotEmpty(t, card.ListEnteredAt)
}

func TestCreateCardUnknownList(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	_, err := s.CreateCard(user, "list-nope", "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEditCardNoChangeLogsNoActivity(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-todo", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-todo")
	activityBefore := len(snap.Activity)

	title := "Ship it"
	snap, err = s.EditCard(user, cardID, CardPatch{Title: &title})
	require.NoError(t, err)
	require.Len(t, snap.Activity, activityBefore, "no-op edit must not log activity")
	require.Equal(t, user.ID, snap.Board.Cards[cardID].UpdatedByID)
}

func TestEditCardChanges(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-todo", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-todo")

	title := "Ship it soon"
	desc := "before friday"
	priority := "high"
	snap, err = s.EditCard(user, cardID, CardPatch{Title: &title, Description: &desc, Priority: &priority})
	require.NoError(t, err)

	card := snap.Board.Cards[cardID]
	require.Equal(t, "Ship it soon", card.Title)
	require.Equal(t, "high", card.Priority)

	last := snap.Activity[len(snap.Activity)-1]
	require.Equal(t, `renamed card to "Ship it soon"; updated card description; set priority to high (Ship it soon)`, last.Message)
}

func TestEditCardValidation(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-todo", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-todo")

	empty := "   "
	_, err = s.EditCard(user, cardID, CardPatch{Title: &empty})
	require.ErrorIs(t, err, ErrInvalidInput)

	bad := "urgent"
	_, err = s.EditCard(user, cardID, CardPatch{Priority: &bad})
	require.ErrorIs(t, err, ErrInvalidInput)

	badDate := "tomorrow"
	_, err = s.EditCard(user, cardID, CardPatch{DueDate: &badDate})
	require.ErrorIs(t, err, ErrInvalidInput)

	negative := "-2"
	_, err = s.EditCard(user, cardID, CardPatch{Estimate: &negative})
	require.ErrorIs(t, err, ErrInvalidInput)

	stranger := []string{"user-ghost"}
	_, err = s.EditCard(user, cardID, CardPatch{AssigneeIDs: &stranger})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEditCardEstimateRounding(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-todo", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-todo")

	est := "1.256"
	snap, err = s.EditCard(user, cardID, CardPatch{Estimate: &est})
	require.NoError(t, err)
	require.Equal(t, "1.26", snap.Board.Cards[cardID].Estimate)

	clear := ""
	snap, err = s.EditCard(user, cardID, CardPatch{Estimate: &clear})
	require.NoError(t, err)
	require.Equal(t, "", snap.Board.Cards[cardID].Estimate)
	last := snap.Activity[len(snap.Activity)-1]
	require.Contains(t, last.Message, "cleared estimate effort")
}

func TestEditCardDropsUnknownLabels(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateLabel(user, "bug", "#ff0000")
	require.NoError(t, err)
	labelID := snap.Board.Labels[0].ID
	snap, err = s.CreateCard(user, "list-todo", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-todo")

	ids := []string{labelID, "label-ghost", labelID}
	snap, err = s.EditCard(user, cardID, CardPatch{LabelIDs: &ids})
	require.NoError(t, err)
	require.Equal(t, []string{labelID}, snap.Board.Cards[cardID].LabelIDs)
}

// backdate rewrites a card's list entry time so elapsed-time math is testable
// without sleeping.
func backdate(s *Store, cardID string, ago time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card := s.doc.Board.Cards[cardID]
	card.ListEnteredAt = time.Now().Add(-ago).UTC().Format(isoFormat)
	s.doc.Board.Cards[cardID] = card
}

func TestMoveAccumulatesListTime(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-todo", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-todo")
	backdate(s, cardID, 2*time.Second)

	snap, err = s.MoveCard(user, cardID, "list-doing", nil)
	require.NoError(t, err)

	card := snap.Board.Cards[cardID]
	require.GreaterOrEqual(t, card.TimeByListMs["list-todo"], int64(1900))
	require.Zero(t, card.TimeByListMs["list-doing"], "open interval must not be persisted")

	entered, err := time.Parse(isoFormat, card.ListEnteredAt)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), entered, 5*time.Second)

	require.Empty(t, snap.Board.Lists[0].CardIDs)
	require.Equal(t, []string{cardID}, snap.Board.Lists[1].CardIDs)
}

func TestMoveClampsPosition(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	for i := 0; i < 3; i++ {
		_, err := s.CreateCard(user, "list-doing", fmt.Sprintf("c%d", i))
		require.NoError(t, err)
	}
	snap, err := s.CreateCard(user, "list-todo", "mover")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-todo")

	pos := 99
	snap, err = s.MoveCard(user, cardID, "list-doing", &pos)
	require.NoError(t, err)
	ids := snap.Board.Lists[1].CardIDs
	require.Equal(t, cardID, ids[len(ids)-1])

	pos = -5
	snap, err = s.MoveCard(user, cardID, "list-doing", &pos)
	require.NoError(t, err)
	require.Equal(t, cardID, snap.Board.Lists[1].CardIDs[0])
}

func TestArchiveLifecycle(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-doing", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-doing")
	backdate(s, cardID, time.Second)

	snap, err = s.ArchiveCard(user, cardID)
	require.NoError(t, err)
	card := snap.Board.Cards[cardID]
	require.True(t, card.Archived)
	require.Equal(t, "list-doing", card.ArchivedFromListID)
	require.NotEmpty(t, card.ArchivedAt)
	require.GreaterOrEqual(t, card.TimeByListMs["list-doing"], int64(900))
	for _, l := range snap.Board.Lists {
		require.NotContains(t, l.CardIDs, cardID, "archived card must leave every list")
	}

	_, err = s.EditCard(user, cardID, CardPatch{})
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = s.MoveCard(user, cardID, "list-todo", nil)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = s.ArchiveCard(user, cardID)
	require.ErrorIs(t, err, ErrInvalidState)

	snap, err = s.UnarchiveCard(user, cardID)
	require.NoError(t, err)
	card = snap.Board.Cards[cardID]
	require.False(t, card.Archived)
	require.Empty(t, card.ArchivedAt)
	require.Empty(t, card.ArchivedFromListID)
	// back at the head of its original list
	require.Equal(t, cardID, snap.Board.Lists[1].CardIDs[0])
}

func TestUnarchivePrefersSourceListEvenDone(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-done", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-done")
	_, err = s.ArchiveCard(user, cardID)
	require.NoError(t, err)

	// the source list still exists, so it wins over the avoid-Done fallback
	snap, err = s.UnarchiveCard(user, cardID)
	require.NoError(t, err)
	require.Equal(t, []string{cardID}, snap.Board.Lists[2].CardIDs)
}

func TestUnarchiveFallbackSkipsDone(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-doing", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-doing")
	_, err = s.ArchiveCard(user, cardID)
	require.NoError(t, err)

	// the source list disappears while the card sits in the archive
	_, err = s.DeleteList(user, "list-doing")
	require.NoError(t, err)

	snap, err = s.UnarchiveCard(user, cardID)
	require.NoError(t, err)
	require.Equal(t, []string{cardID}, snap.Board.Lists[0].CardIDs, "restore should pick To Do, not Done")
}

func TestUnarchiveOnlyDoneLeft(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-todo", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-todo")
	_, err = s.ArchiveCard(user, cardID)
	require.NoError(t, err)
	_, err = s.DeleteList(user, "list-todo")
	require.NoError(t, err)
	_, err = s.DeleteList(user, "list-doing")
	require.NoError(t, err)

	snap, err = s.UnarchiveCard(user, cardID)
	require.NoError(t, err)
	require.Equal(t, []string{cardID}, snap.Board.Lists[0].CardIDs)
	require.Equal(t, "Done", snap.Board.Lists[0].Title)
}

func TestUnarchiveNoListsAvailable(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-todo", "Ship it")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-todo")
	_, err = s.ArchiveCard(user, cardID)
	require.NoError(t, err)
	for _, id := range []string{"list-todo", "list-doing", "list-done"} {
		_, err = s.DeleteList(user, id)
		require.NoError(t, err)
	}

	_, err = s.UnarchiveCard(user, cardID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDeleteListCascades(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateCard(user, "list-todo", "a")
	require.NoError(t, err)
	cardID := firstCardID(snap, "list-todo")

	snap, err = s.DeleteList(user, "list-todo")
	require.NoError(t, err)
	require.NotContains(t, snap.Board.Cards, cardID)
	require.Len(t, snap.Board.Lists, 2)
}

func TestActivityCapped(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	for i := 0; i < maxActivity+20; i++ {
		_, err := s.RenameList(user, "list-todo", fmt.Sprintf("T%d", i))
		require.NoError(t, err)
	}
	snap := s.Snapshot()
	require.Len(t, snap.Activity, maxActivity)
	require.Equal(t, fmt.Sprintf("renamed list %q to %q", "T138", "T139"),
		snap.Activity[len(snap.Activity)-1].Message)
}

func TestLabelNameUniqueCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")
	snap, err := s.CreateLabel(user, "Bug", "#ff0000")
	require.NoError(t, err)
	_, err = s.CreateLabel(user, "bug", "#00ff00")
	require.ErrorIs(t, err, ErrInvalidInput)

	snap2, err := s.CreateLabel(user, "Chore", "not-a-color")
	require.NoError(t, err)
	require.Equal(t, defaultLabelHex, snap2.Board.Labels[1].Color)

	rename := "BUG"
	_, err = s.UpdateLabel(user, snap2.Board.Labels[1].ID, &rename, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	badColor := "red"
	_, err = s.UpdateLabel(user, snap.Board.Labels[0].ID, nil, &badColor)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalizeRepairsDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	raw := `{
	  "board": {
	    "id": "board-1",
	    "name": "Team Board",
	    "labels": [{"id": "label-1", "name": "bug", "color": "red"}],
	    "lists": [{"id": "list-1", "title": "Inbox"}],
	    "cards": {
	      "card-1": {"id": "card-1", "title": "old", "priority": "urgent", "updatedAt": "2024-01-01T00:00:00.000Z"}
	    }
	  }
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s, err := OpenStore(path)
	require.NoError(t, err)
	snap := s.Snapshot()

	require.Equal(t, defaultLabelHex, snap.Board.Labels[0].Color)
	require.NotNil(t, snap.Board.Lists[0].CardIDs)

	card := snap.Board.Cards["card-1"]
	require.Equal(t, "", card.Priority)
	require.Equal(t, "2024-01-01T00:00:00.000Z", card.CreatedAt)
	require.Equal(t, card.CreatedAt, card.ListEnteredAt)
	require.NotNil(t, card.Checklist)
	require.NotNil(t, card.AssigneeIDs)
	require.NotNil(t, card.TimeByListMs)
}

func TestCardLifecycleEndToEnd(t *testing.T) {
	s := newTestStore(t)
	user := addTestUser(t, s, "ada")

	snap, err := s.CreateList(user, "Triage")
	require.NoError(t, err)
	triageID := snap.Board.Lists[3].ID

	snap, err = s.CreateCard(user, triageID, "Fix bug")
	require.NoError(t, err)
	cardID := firstCardID(snap, triageID)
	require.Equal(t, []string{user.ID}, snap.Board.Cards[cardID].AssigneeIDs)
	backdate(s, cardID, time.Second)

	pos := 0
	snap, err = s.MoveCard(user, cardID, "list-done", &pos)
	require.NoError(t, err)
	card := snap.Board.Cards[cardID]
	require.Greater(t, card.TimeByListMs[triageID], int64(0))
	require.Equal(t, cardID, snap.Board.Lists[2].CardIDs[0])

	snap, err = s.ArchiveCard(user, cardID)
	require.NoError(t, err)
	require.NotContains(t, snap.Board.Lists[2].CardIDs, cardID)
	require.Equal(t, "list-done", snap.Board.Cards[cardID].ArchivedFromListID)

	// restore goes back to Done because that is where it was archived from
	snap, err = s.UnarchiveCard(user, cardID)
	require.NoError(t, err)
	require.Contains(t, snap.Board.Lists[2].CardIDs, cardID)
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateUser("Ada", "x", "127.0.0.1")
	require.NoError(t, err)
	_, err = s.CreateUser("ada", "y", "127.0.0.1")
	require.ErrorIs(t, err, ErrInvalidInput)

	snap := s.Snapshot()
	require.Len(t, snap.Users, 1)
	require.Equal(t, "joined the workspace", snap.Activity[0].Message)
}
