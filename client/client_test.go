package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testCSRF = "csrf-test-token"

// fakeServer speaks just enough of the board protocol to exercise the
// client: login, board fetch, card patch/move, and the ws signal channel.
type fakeServer struct {
	mu        sync.Mutex
	board     Board
	me        User
	boardGets int
	patches   []map[string]any
	moves     []map[string]any
	upgrader  websocket.Upgrader
	conns     []*websocket.Conn
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		me: User{ID: "user-me", Name: "ada"},
		board: Board{
			ID:   "board-1",
			Name: "Team Board",
			Lists: []List{
				{ID: "list-1", Title: "To Do", CardIDs: []string{"card-1"}},
				{ID: "list-2", Title: "Doing", CardIDs: []string{}},
			},
			Cards: map[string]Card{
				"card-1": {
					ID: "card-1", Title: "Ship it", Priority: "low",
					Checklist: []ChecklistItem{}, LabelIDs: []string{}, AssigneeIDs: []string{"user-me"},
					UpdatedByID: "user-other", UpdatedAt: "2026-01-02T00:00:00.000Z",
				},
			},
		},
	}
}

func (fs *fakeServer) snapshotBody() map[string]any {
	return map[string]any{
		"ok":       true,
		"board":    fs.board,
		"users":    []User{fs.me},
		"activity": []ActivityEntry{},
	}
}

func (fs *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, map[string]any{"ok": true, "user": fs.me, "csrfToken": testCSRF})
	})
	mux.HandleFunc("GET /api/board", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.boardGets++
		body := fs.snapshotBody()
		body["user"] = fs.me
		body["csrfToken"] = testCSRF
		writeBody(w, body)
	})
	mux.HandleFunc("PATCH /api/cards/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != testCSRF {
			w.WriteHeader(http.StatusForbidden)
			writeBody(w, map[string]any{"error": "Invalid CSRF token"})
			return
		}
		var patch map[string]any
		_ = json.NewDecoder(r.Body).Decode(&patch)
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.patches = append(fs.patches, patch)
		card := fs.board.Cards[r.PathValue("id")]
		if title, ok := patch["title"].(string); ok {
			card.Title = title
		}
		card.UpdatedByID = fs.me.ID
		card.UpdatedAt = "2026-01-02T00:00:01.000Z"
		fs.board.Cards[r.PathValue("id")] = card
		writeBody(w, fs.snapshotBody())
	})
	mux.HandleFunc("POST /api/cards/{id}/move", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != testCSRF {
			w.WriteHeader(http.StatusForbidden)
			writeBody(w, map[string]any{"error": "Invalid CSRF token"})
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.moves = append(fs.moves, req)
		cardID := r.PathValue("id")
		for i := range fs.board.Lists {
			ids := fs.board.Lists[i].CardIDs[:0]
			for _, id := range fs.board.Lists[i].CardIDs {
				if id != cardID {
					ids = append(ids, id)
				}
			}
			fs.board.Lists[i].CardIDs = ids
		}
		for i := range fs.board.Lists {
			if fs.board.Lists[i].ID == req["targetListId"] {
				fs.board.Lists[i].CardIDs = append(fs.board.Lists[i].CardIDs, cardID)
			}
		}
		writeBody(w, fs.snapshotBody())
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := fs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteJSON(map[string]string{"type": "connected"})
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()
	})
	return mux
}

func (fs *fakeServer) broadcast(msgType string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, conn := range fs.conns {
		conn.WriteJSON(map[string]string{"type": msgType})
	}
}

func (fs *fakeServer) boardGetCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.boardGets
}

func writeBody(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, fs *fakeServer) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(fs.handler())
	t.Cleanup(ts.Close)
	c, err := New(Options{BaseURL: ts.URL, DataDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()
	_, err = c.Login(ctx, "ada", "password", false)
	require.NoError(t, err)
	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	return c, ts
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCloseCardUnchangedSendsNothing(t *testing.T) {
	fs := newFakeServer()
	c, _ := newTestClient(t, fs)

	draft, err := c.OpenCard("card-1")
	require.NoError(t, err)
	require.NoError(t, c.CloseCard(context.Background(), draft))

	require.Empty(t, fs.patches, "untouched draft must not PATCH")
	require.Empty(t, fs.moves, "untouched draft must not move")
}

func TestCloseCardPersistsOnlyDiffs(t *testing.T) {
	fs := newFakeServer()
	c, _ := newTestClient(t, fs)

	draft, err := c.OpenCard("card-1")
	require.NoError(t, err)
	draft.Title = "Ship it today"
	draft.ListID = "list-2"
	require.NoError(t, c.CloseCard(context.Background(), draft))

	require.Len(t, fs.patches, 1)
	require.Equal(t, map[string]any{"title": "Ship it today"}, fs.patches[0])
	require.Len(t, fs.moves, 1)
	require.Equal(t, "list-2", fs.moves[0]["targetListId"])
	_, hasPosition := fs.moves[0]["position"]
	require.False(t, hasPosition, "list change from an edit session must append, not pin a position")
}

func TestOpenCardMarksSeen(t *testing.T) {
	fs := newFakeServer()
	c, _ := newTestClient(t, fs)

	require.True(t, c.State().Unseen["card-1"], "remote edit should start unseen")

	_, err := c.OpenCard("card-1")
	require.NoError(t, err)
	require.False(t, c.State().Unseen["card-1"])
	c.DiscardCard()

	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	require.False(t, c.State().Unseen["card-1"], "seen mark must survive a refresh")
}

func TestSignalSuppressedWhileTyping(t *testing.T) {
	fs := newFakeServer()
	c, _ := newTestClient(t, fs)
	base := fs.boardGetCount()

	c.SetTyping(true)
	c.signal()
	c.signal()
	require.Equal(t, base, fs.boardGetCount(), "signals while typing must not refetch")

	c.SetTyping(false)
	waitUntil(t, func() bool { return fs.boardGetCount() == base+1 },
		"deferred refresh should run once typing stops")
}

func TestSignalSuppressedWhileCardOpen(t *testing.T) {
	fs := newFakeServer()
	c, _ := newTestClient(t, fs)
	base := fs.boardGetCount()

	draft, err := c.OpenCard("card-1")
	require.NoError(t, err)
	c.signal()
	require.Equal(t, base, fs.boardGetCount())

	require.NoError(t, c.CloseCard(context.Background(), draft))
	waitUntil(t, func() bool { return fs.boardGetCount() >= base+1 },
		"deferred refresh should run after the edit session ends")
}

func TestListenRefreshesOnBroadcast(t *testing.T) {
	fs := newFakeServer()
	c, _ := newTestClient(t, fs)
	base := fs.boardGetCount()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Listen(ctx) }()

	// the connected handshake triggers an initial refresh
	waitUntil(t, func() bool { return fs.boardGetCount() > base },
		"no refresh after ws connect")

	mid := fs.boardGetCount()
	fs.broadcast("board_updated")
	waitUntil(t, func() bool { return fs.boardGetCount() > mid },
		"no refresh after board_updated broadcast")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Listen did not return after context cancel")
	}
}
