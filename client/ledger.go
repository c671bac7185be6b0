package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SeenLedger records, per card, the updatedAt stamp this user last looked
// at. A card whose current updatedAt differs from the ledger entry carries a
// remote edit the user has not seen. The ledger file is scoped to one user so
// accounts sharing a machine do not leak read-state into each other.
type SeenLedger struct {
	path    string
	entries map[string]string
}

func openLedger(dir, userID string) (*SeenLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	l := &SeenLedger{
		path:    filepath.Join(dir, fmt.Sprintf("seen-cards-%s.json", userID)),
		entries: map[string]string{},
	}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		// a corrupt ledger just means everything shows as unseen once
		l.entries = map[string]string{}
	}
	return l, nil
}

func (l *SeenLedger) save() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func (l *SeenLedger) get(cardID string) string { return l.entries[cardID] }

func (l *SeenLedger) markSeen(cardID, updatedAt string) error {
	if l.entries[cardID] == updatedAt {
		return nil
	}
	l.entries[cardID] = updatedAt
	return l.save()
}

// prune drops entries for cards that no longer exist on the board.
func (l *SeenLedger) prune(present map[string]Card) error {
	changed := false
	for id := range l.entries {
		if _, ok := present[id]; !ok {
			delete(l.entries, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return l.save()
}
