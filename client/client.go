package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectDelay   = 2 * time.Second
	fallbackInterval = 60 * time.Second
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

type Options struct {
	// BaseURL is the server root, e.g. "http://localhost:3000".
	BaseURL string
	// DataDir holds the per-user seen-card ledgers.
	DataDir string
	// HTTPClient is optional; a cookie jar is installed when missing.
	HTTPClient *http.Client
	Logger     *slog.Logger
	// OnBoard fires after every applied snapshot.
	OnBoard func(BoardState)
	// OnActiveUsers fires when the connected-user roster changes.
	OnActiveUsers func([]User)
}

// Client talks to one taskboard server on behalf of one user. All exported
// methods are safe for concurrent use.
type Client struct {
	baseURL       string
	dataDir       string
	httpc         *http.Client
	log           *slog.Logger
	onBoard       func(BoardState)
	onActiveUsers func([]User)

	mu             sync.Mutex
	csrf           string
	me             User
	ledger         *SeenLedger
	state          BoardState
	typing         bool
	dialogOpen     bool
	openCardID     string
	pendingRefresh bool
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if httpc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpc.Jar = jar
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	onBoard := opts.OnBoard
	if onBoard == nil {
		onBoard = func(BoardState) {}
	}
	onActiveUsers := opts.OnActiveUsers
	if onActiveUsers == nil {
		onActiveUsers = func([]User) {}
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		dataDir:       dataDir,
		httpc:         httpc,
		log:           log,
		onBoard:       onBoard,
		onActiveUsers: onActiveUsers,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	c.mu.Unlock()

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// --- auth ---

func (c *Client) startSession(user *User, csrf string) error {
	if user == nil {
		return fmt.Errorf("client: server returned no user")
	}
	ledger, err := openLedger(c.dataDir, user.ID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.me = *user
	c.csrf = csrf
	c.ledger = ledger
	c.mu.Unlock()
	return nil
}

func (c *Client) Register(ctx context.Context, username, password string, remember bool) (User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/register", map[string]any{
		"username": username, "password": password, "remember": remember,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	if err := c.startSession(resp.User, resp.CSRFToken); err != nil {
		return User{}, err
	}
	return *resp.User, nil
}

func (c *Client) Login(ctx context.Context, username, password string, remember bool) (User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/login", map[string]any{
		"username": username, "password": password, "remember": remember,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	if err := c.startSession(resp.User, resp.CSRFToken); err != nil {
		return User{}, err
	}
	return *resp.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
	c.mu.Lock()
	c.csrf = ""
	c.me = User{}
	c.ledger = nil
	c.state = BoardState{}
	c.mu.Unlock()
	return err
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.do(ctx, http.MethodPost, "/api/change-password", map[string]any{
		"currentPassword": current, "newPassword": next,
	}, nil)
}

// Me returns the identity bound to the current session, or nil when
// anonymous.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User != nil && resp.CSRFToken != "" {
		if err := c.startSession(resp.User, resp.CSRFToken); err != nil {
			return nil, err
		}
	}
	return resp.User, nil
}

// --- board state ---

// Refresh fetches the full snapshot and reconciles unseen-card marks.
func (c *Client) Refresh(ctx context.Context) (BoardState, error) {
	var resp boardResponse
	if err := c.do(ctx, http.MethodGet, "/api/board", nil, &resp); err != nil {
		return BoardState{}, err
	}
	return c.applySnapshot(resp.Board, resp.Users, resp.Activity), nil
}

func (c *Client) applySnapshot(board Board, users []User, activity []ActivityEntry) BoardState {
	c.mu.Lock()
	unseen := map[string]bool{}
	if c.ledger != nil {
		if err := c.ledger.prune(board.Cards); err != nil {
			c.log.Warn("prune seen ledger", "err", err)
		}
		unseen = unseenCards(board, c.me.ID, c.ledger)
		// the card being edited right now is by definition seen
		delete(unseen, c.openCardID)
	}
	c.state = BoardState{Board: board, Users: users, Activity: activity, Unseen: unseen}
	state := c.state
	c.mu.Unlock()
	c.onBoard(state)
	return state
}

// State returns the last applied snapshot without touching the network.
func (c *Client) State() BoardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type mutationResponse struct {
	OK       bool            `json:"ok"`
	Board    Board           `json:"board"`
	Users    []User          `json:"users"`
	Activity []ActivityEntry `json:"activity"`
}

func (c *Client) mutate(ctx context.Context, method, path string, body any) (BoardState, error) {
	var resp mutationResponse
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return BoardState{}, err
	}
	return c.applySnapshot(resp.Board, resp.Users, resp.Activity), nil
}

// --- mutations ---

func (c *Client) CreateList(ctx context.Context, title string) (BoardState, error) {
	return c.mutate(ctx, http.MethodPost, "/api/lists", map[string]any{"title": title})
}

func (c *Client) RenameList(ctx context.Context, listID, title string) (BoardState, error) {
	return c.mutate(ctx, http.MethodPatch, "/api/lists/"+listID, map[string]any{"title": title})
}

func (c *Client) DeleteList(ctx context.Context, listID string) (BoardState, error) {
	return c.mutate(ctx, http.MethodDelete, "/api/lists/"+listID, nil)
}

func (c *Client) CreateCard(ctx context.Context, listID, title string) (BoardState, error) {
	return c.mutate(ctx, http.MethodPost, "/api/cards", map[string]any{"listId": listID, "title": title})
}

// MoveCard moves a card to a list. A nil position appends.
func (c *Client) MoveCard(ctx context.Context, cardID, listID string, position *int) (BoardState, error) {
	body := map[string]any{"targetListId": listID}
	if position != nil {
		body["position"] = *position
	}
	return c.mutate(ctx, http.MethodPost, "/api/cards/"+cardID+"/move", body)
}

func (c *Client) ArchiveCard(ctx context.Context, cardID string) (BoardState, error) {
	return c.mutate(ctx, http.MethodPost, "/api/cards/"+cardID+"/archive", nil)
}

func (c *Client) UnarchiveCard(ctx context.Context, cardID string) (BoardState, error) {
	return c.mutate(ctx, http.MethodPost, "/api/cards/"+cardID+"/unarchive", nil)
}

func (c *Client) DeleteCard(ctx context.Context, cardID string) (BoardState, error) {
	return c.mutate(ctx, http.MethodDelete, "/api/cards/"+cardID, nil)
}

func (c *Client) CreateLabel(ctx context.Context, name, color string) (BoardState, error) {
	return c.mutate(ctx, http.MethodPost, "/api/labels", map[string]any{"name": name, "color": color})
}

func (c *Client) UpdateLabel(ctx context.Context, labelID string, name, color *string) (BoardState, error) {
	body := map[string]any{}
	if name != nil {
		body["name"] = *name
	}
	if color != nil {
		body["color"] = *color
	}
	return c.mutate(ctx, http.MethodPatch, "/api/labels/"+labelID, body)
}

// --- card editing sessions ---

// CardDraft is a local working copy of a card open for editing. Mutate the
// fields and hand it back to CloseCard; only fields that still differ from
// the board at that point are persisted.
type CardDraft struct {
	ID          string
	ListID      string
	Title       string
	Description string
	Checklist   []ChecklistItem
	LabelIDs    []string
	AssigneeIDs []string
	Priority    string
	DueDate     string
	Estimate    string
}

func (c *Client) listOf(cardID string) string {
	for _, l := range c.state.Board.Lists {
		for _, id := range l.CardIDs {
			if id == cardID {
				return l.ID
			}
		}
	}
	return ""
}

// OpenCard starts an editing session: the card is marked seen in the ledger,
// its unseen flag clears, and board refreshes are held back until the session
// ends.
func (c *Client) OpenCard(cardID string) (CardDraft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	card, ok := c.state.Board.Cards[cardID]
	if !ok {
		return CardDraft{}, fmt.Errorf("client: unknown card %s", cardID)
	}
	if card.Archived {
		return CardDraft{}, fmt.Errorf("client: card %s is archived", cardID)
	}
	if c.ledger != nil {
		if err := c.ledger.markSeen(cardID, card.UpdatedAt); err != nil {
			c.log.Warn("mark card seen", "card", cardID, "err", err)
		}
	}
	delete(c.state.Unseen, cardID)
	c.openCardID = cardID
	return CardDraft{
		ID:          card.ID,
		ListID:      c.listOf(cardID),
		Title:       card.Title,
		Description: card.Description,
		Checklist:   append([]ChecklistItem(nil), card.Checklist...),
		LabelIDs:    append([]string(nil), card.LabelIDs...),
		AssigneeIDs: append([]string(nil), card.AssigneeIDs...),
		Priority:    card.Priority,
		DueDate:     card.DueDate,
		Estimate:    card.Estimate,
	}, nil
}

func jsonEq(a, b any) bool {
	ja, err1 := json.Marshal(a)
	jb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(ja, jb)
}

// CloseCard ends the editing session, persisting only what changed: a PATCH
// with the differing fields, then a move when the draft's list differs. A
// refresh held back during the session runs afterwards.
func (c *Client) CloseCard(ctx context.Context, draft CardDraft) error {
	c.mu.Lock()
	card, ok := c.state.Board.Cards[draft.ID]
	fromList := c.listOf(draft.ID)
	c.mu.Unlock()
	defer c.endCardSession()
	if !ok {
		return fmt.Errorf("client: unknown card %s", draft.ID)
	}

	patch := map[string]any{}
	if draft.Title != card.Title {
		patch["title"] = draft.Title
	}
	if draft.Description != card.Description {
		patch["description"] = draft.Description
	}
	if !jsonEq(draft.Checklist, card.Checklist) {
		patch["checklist"] = draft.Checklist
	}
	if !jsonEq(draft.LabelIDs, card.LabelIDs) {
		patch["labelIds"] = draft.LabelIDs
	}
	if !jsonEq(draft.AssigneeIDs, card.AssigneeIDs) {
		patch["assigneeIds"] = draft.AssigneeIDs
	}
	if draft.Priority != card.Priority {
		patch["priority"] = draft.Priority
	}
	if draft.DueDate != card.DueDate {
		patch["dueDate"] = draft.DueDate
	}
	if draft.Estimate != card.Estimate {
		patch["estimate"] = draft.Estimate
	}

	if len(patch) > 0 {
		if _, err := c.mutate(ctx, http.MethodPatch, "/api/cards/"+draft.ID, patch); err != nil {
			return err
		}
	}
	if draft.ListID != "" && draft.ListID != fromList {
		if _, err := c.MoveCard(ctx, draft.ID, draft.ListID, nil); err != nil {
			return err
		}
	}
	// record our own edit as seen so it never flags as remote
	c.mu.Lock()
	if c.ledger != nil {
		if fresh, ok := c.state.Board.Cards[draft.ID]; ok {
			_ = c.ledger.markSeen(draft.ID, fresh.UpdatedAt)
		}
	}
	c.mu.Unlock()
	return nil
}

// DiscardCard ends the editing session without persisting anything.
func (c *Client) DiscardCard() { c.endCardSession() }

func (c *Client) endCardSession() {
	c.mu.Lock()
	c.openCardID = ""
	flush := c.maybeFlushLocked()
	c.mu.Unlock()
	if flush {
		go c.refreshNow()
	}
}

// --- refresh suppression ---

// SetTyping marks the user as mid-keystroke; refreshes are deferred so the
// board does not repaint under their hands.
func (c *Client) SetTyping(typing bool) {
	c.mu.Lock()
	c.typing = typing
	flush := c.maybeFlushLocked()
	c.mu.Unlock()
	if flush {
		go c.refreshNow()
	}
}

// SetDialogOpen marks a blocking dialog as open, deferring refreshes.
func (c *Client) SetDialogOpen(open bool) {
	c.mu.Lock()
	c.dialogOpen = open
	flush := c.maybeFlushLocked()
	c.mu.Unlock()
	if flush {
		go c.refreshNow()
	}
}

func (c *Client) suppressedLocked() bool {
	return c.typing || c.dialogOpen || c.openCardID != ""
}

func (c *Client) maybeFlushLocked() bool {
	if c.pendingRefresh && !c.suppressedLocked() {
		c.pendingRefresh = false
		return true
	}
	return false
}

// signal handles one change notification: refresh immediately, or remember
// that a refresh is owed once the user stops interacting.
func (c *Client) signal() {
	c.mu.Lock()
	if c.suppressedLocked() {
		c.pendingRefresh = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.refreshNow()
}

func (c *Client) refreshNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := c.Refresh(ctx); err != nil {
		c.log.Warn("board refresh failed", "err", err)
	}
}

// --- live updates ---

type wsMessage struct {
	Type  string `json:"type"`
	Users []User `json:"users"`
}

func (c *Client) wsURL() string {
	url := c.baseURL + "/ws"
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	return "ws://" + strings.TrimPrefix(url, "http://")
}

// Listen keeps a WebSocket open to the server, refreshing the board on every
// change signal. Lost connections are redialed after a short delay, and a
// periodic fallback refresh covers missed signals. Blocks until ctx is done.
func (c *Client) Listen(ctx context.Context) error {
	ticker := time.NewTicker(fallbackInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.signal()
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		dialer := websocket.Dialer{Jar: c.httpc.Jar}
		conn, resp, err := dialer.DialContext(ctx, c.wsURL(), nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("ws dial failed", "err", err)
			if !sleepCtx(ctx, reconnectDelay) {
				return nil
			}
			continue
		}
		c.readLoop(ctx, conn)
		if !sleepCtx(ctx, reconnectDelay) {
			return nil
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				c.log.Warn("ws connection lost", "err", err)
			}
			return
		}
		switch msg.Type {
		case "connected", "board_updated":
			c.signal()
		case "active_users":
			c.onActiveUsers(msg.Users)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
