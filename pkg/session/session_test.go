package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-service/internal/auth"
	"chat-service/internal/directory"
	"chat-service/internal/history"
	"chat-service/internal/models"
	"chat-service/internal/ws"
)

var testSecret = []byte("session-test-secret")

// chatServer runs the real hub behind httptest for end-to-end session
// tests. failFirst makes the server kill the first n connections right
// after the upgrade, to exercise reconnection.
type chatServer struct {
	url       string
	failFirst atomic.Int32
	dials     atomic.Int32
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()

	dir := directory.New([]models.Channel{
		{ID: "general", Name: "general", Category: "ecosystem"},
		{ID: "random", Name: "random", Category: "ecosystem"},
	})
	hub := ws.NewHub(dir, history.NewMemoryStore(50), 50, nil)
	verifier := auth.NewVerifier(testSecret, nil)

	cs := &chatServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		cs.dials.Add(1)
		if cs.failFirst.Load() > 0 {
			cs.failFirst.Add(-1)
			if conn, err := upgrader.Upgrade(w, r, nil); err == nil {
				conn.Close()
			}
			return
		}
		ws.ServeWS(hub, verifier, w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cs.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return cs
}

func signedToken(t *testing.T, username string) (string, models.Identity) {
	t.Helper()
	id := models.Identity{
		ID:          "u-" + username,
		Username:    username,
		DisplayName: username,
		AvatarColor: "#444444",
		Role:        models.RoleMember,
	}
	token, err := auth.SignToken(testSecret, id, time.Hour)
	require.NoError(t, err)
	return token, id
}

func newTestSession(t *testing.T, server *chatServer, username, channel string) *Session {
	t.Helper()
	token, id := signedToken(t, username)
	s := New(Config{
		ServerURL:        server.url,
		Token:            token,
		ChannelID:        channel,
		DefaultChannelID: "general",
		Identity:         id,
		RetryDelay:       50 * time.Millisecond,
	})
	t.Cleanup(s.Close)
	return s
}

func waitJoined(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == StateJoined }, 3*time.Second, 10*time.Millisecond)
}

func TestSessionJoinsAndReceivesHistory(t *testing.T) {
	server := newChatServer(t)

	s := newTestSession(t, server, "alice", "general")
	s.Start()
	waitJoined(t, s)

	assert.Empty(t, s.Messages())
	require.Eventually(t, func() bool { return s.OnlineCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSessionSendAndReceive(t *testing.T) {
	server := newChatServer(t)

	alice := newTestSession(t, server, "alice", "general")
	alice.Start()
	waitJoined(t, alice)

	bob := newTestSession(t, server, "bob", "general")
	bob.Start()
	waitJoined(t, bob)

	require.True(t, alice.Send("hello bob"))

	require.Eventually(t, func() bool { return len(bob.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := bob.Messages()[0]
	assert.Equal(t, "hello bob", got.Content)
	assert.Equal(t, "u-alice", got.UserID)

	// The sender sees its own message come back through the hub too.
	require.Eventually(t, func() bool { return len(alice.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSendWhileNotJoinedIsDropped(t *testing.T) {
	server := newChatServer(t)
	s := newTestSession(t, server, "alice", "general")

	// Not started: no socket, sends drop silently.
	assert.False(t, s.Send("into the void"))
	assert.False(t, s.Send("   "))
}

func TestSessionReconnectsAfterServerDrop(t *testing.T) {
	server := newChatServer(t)
	server.failFirst.Store(2)

	s := newTestSession(t, server, "alice", "general")
	s.Start()

	waitJoined(t, s)
	assert.GreaterOrEqual(t, server.dials.Load(), int32(3))
}

func TestSessionFallsBackToDefaultChannel(t *testing.T) {
	server := newChatServer(t)

	s := newTestSession(t, server, "alice", "deleted-channel")
	s.Start()

	waitJoined(t, s)
	assert.Equal(t, "general", s.ChannelID())
}

func TestSessionStopsRetryingOnAuthFailure(t *testing.T) {
	server := newChatServer(t)

	var errCode atomic.Value
	handler := &funcHandler{onError: func(code, _ string) { errCode.Store(code) }}

	s := New(Config{
		ServerURL:  server.url,
		Token:      "not-a-real-token",
		ChannelID:  "general",
		Handler:    handler,
		RetryDelay: 50 * time.Millisecond,
	})
	t.Cleanup(s.Close)
	s.Start()

	require.Eventually(t, func() bool { return errCode.Load() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.CodeInvalidToken, errCode.Load())

	// The retry loop gives up until new credentials arrive.
	require.Eventually(t, func() bool { return s.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)
	dialsAfter := server.dials.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, dialsAfter, server.dials.Load())
}

func TestSetTokenDoesNotDuplicateConnectLoop(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	var (
		dials     atomic.Int32
		mu        sync.Mutex
		held      []*websocket.Conn
		firstConn = make(chan *websocket.Conn, 1)
	)

	// The first connection gets its credentials rejected but stays open,
	// so the session clears its token while the read loop is still
	// attached. Every later connection parks without responding, pinning
	// whichever connect loop dialed it.
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		held = append(held, conn)
		mu.Unlock()

		if dials.Add(1) == 1 {
			conn.ReadMessage() // consume the join
			payload, _ := json.Marshal(models.NewErrorFrame(models.CodeInvalidToken, "bad token"))
			conn.WriteMessage(websocket.TextMessage, payload)
			firstConn <- conn
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		mu.Lock()
		for _, c := range held {
			c.Close()
		}
		mu.Unlock()
		srv.Close()
	})

	var errSeen atomic.Bool
	handler := &funcHandler{onError: func(string, string) { errSeen.Store(true) }}
	s := New(Config{
		ServerURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Token:      "stale",
		ChannelID:  "general",
		Handler:    handler,
		RetryDelay: 50 * time.Millisecond,
	})
	t.Cleanup(s.Close)
	s.Start()

	require.Eventually(t, func() bool { return errSeen.Load() }, 2*time.Second, 10*time.Millisecond)

	// Fresh credentials arrive while the first socket is still open and
	// its connect loop alive; only then does the server drop the socket.
	s.SetToken("fresh")
	(<-firstConn).Close()

	// The surviving loop redials exactly once and parks on the held-open
	// socket. A duplicated loop would show up as a third dial.
	require.Eventually(t, func() bool { return dials.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(2), dials.Load())
}

func TestHistoryFrameAfterCloseKeepsTerminalState(t *testing.T) {
	server := newChatServer(t)
	s := newTestSession(t, server, "alice", "general")
	s.Close()

	payload, err := json.Marshal(models.NewHistoryFrame("general", nil))
	require.NoError(t, err)
	s.dispatch(payload)

	assert.Equal(t, StateClosed, s.State())
	assert.Empty(t, s.Messages())
}

func TestSwitchChannelClearsMessagesOptimistically(t *testing.T) {
	server := newChatServer(t)

	alice := newTestSession(t, server, "alice", "general")
	alice.Start()
	waitJoined(t, alice)
	require.True(t, alice.Send("before switch"))
	require.Eventually(t, func() bool { return len(alice.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)

	alice.SwitchChannel("random")
	assert.Empty(t, alice.Messages())
	assert.Equal(t, "random", alice.ChannelID())

	require.Eventually(t, func() bool { return alice.OnlineCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnreadCountsOnlyOthersWhileInactive(t *testing.T) {
	server := newChatServer(t)

	alice := newTestSession(t, server, "alice", "general")
	alice.Start()
	waitJoined(t, alice)

	bob := newTestSession(t, server, "bob", "general")
	bob.Start()
	waitJoined(t, bob)

	alice.SetActive(false)

	require.True(t, bob.Send("one"))
	require.True(t, alice.Send("own message"))
	require.True(t, bob.Send("two"))

	require.Eventually(t, func() bool { return len(alice.Messages()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, alice.Unread())

	alice.SetActive(true)
	assert.Equal(t, 0, alice.Unread())
}

func TestTypingEventsFlowAndExpire(t *testing.T) {
	server := newChatServer(t)

	alice := newTestSession(t, server, "alice", "general")
	alice.cfg.TypingTTL = 300 * time.Millisecond
	alice.typing = newTypingTracker(300 * time.Millisecond)
	alice.Start()
	waitJoined(t, alice)

	bob := newTestSession(t, server, "bob", "general")
	bob.Start()
	waitJoined(t, bob)

	bob.Typing()

	require.Eventually(t, func() bool { return len(alice.TypingUsers()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "bob", alice.TypingUsers()[0].Username)

	// Expires on its own without further events.
	require.Eventually(t, func() bool { return len(alice.TypingUsers()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseIsTerminal(t *testing.T) {
	server := newChatServer(t)

	s := newTestSession(t, server, "alice", "general")
	s.Start()
	waitJoined(t, s)

	s.Close()
	assert.Equal(t, StateClosed, s.State())

	dialsAfter := server.dials.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, dialsAfter, server.dials.Load())
	assert.False(t, s.Send("after close"))
}

// funcHandler adapts bare funcs to the Handler interface for tests.
type funcHandler struct {
	NopHandler
	onError func(code, message string)
}

func (h *funcHandler) OnError(code, message string) {
	if h.onError != nil {
		h.onError(code, message)
	}
}
