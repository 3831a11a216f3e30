// Package session is the client side of the chat socket: one connection
// session bound to one identity and at most one active channel, with
// automatic reconnection and client-side typing expiry.
package session

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"chat-service/internal/models"
)

// State of the connection session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultRetryDelay     = 3 * time.Second
	defaultTypingTTL      = 3 * time.Second
	defaultTypingDebounce = 1500 * time.Millisecond
	sweepInterval         = 250 * time.Millisecond
	maxLocalMessages      = 500
)

// BackoffPolicy is an optional hardening over the fixed retry delay:
// capped exponential backoff with jitter. Retry-forever still holds;
// only the spacing changes. The delay resets after a successful join.
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64 // fraction of the delay randomized, 0..1
}

func (p *BackoffPolicy) delay(attempt int) time.Duration {
	d := float64(p.Initial)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
		if d >= float64(p.Max) {
			d = float64(p.Max)
			break
		}
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Config for a session. ServerURL is the ws:// endpoint; Token the SSO
// bearer credential; ChannelID the initial target channel.
type Config struct {
	ServerURL        string
	Token            string
	ChannelID        string
	DefaultChannelID string // fallback when the target channel is rejected
	Identity         models.Identity
	Handler          Handler

	RetryDelay     time.Duration  // fixed reconnect delay, default 3s
	Backoff        *BackoffPolicy // optional, replaces the fixed delay
	TypingTTL      time.Duration  // default 3s
	TypingDebounce time.Duration  // default 1.5s
}

// Session owns the socket: connect, send, close, and the state enum,
// instead of a free-floating connection reference. At most one
// reconnect attempt is in flight at a time.
type Session struct {
	cfg     Config
	handler Handler
	typing  *typingTracker

	mu          sync.Mutex
	state       State
	running     bool
	conn        *websocket.Conn
	token       string
	target      string
	messages    []models.Message
	onlineCount int
	unread      int
	active      bool
	lastTyping  time.Time
	attempt     int

	writeMu sync.Mutex

	closeOnce sync.Once
	sweepOnce sync.Once
	closeCh   chan struct{}
}

// New builds a session; Start begins connecting.
func New(cfg Config) *Session {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = defaultTypingTTL
	}
	if cfg.TypingDebounce <= 0 {
		cfg.TypingDebounce = defaultTypingDebounce
	}
	handler := cfg.Handler
	if handler == nil {
		handler = NopHandler{}
	}
	return &Session{
		cfg:     cfg,
		handler: handler,
		typing:  newTypingTracker(cfg.TypingTTL),
		token:   cfg.Token,
		target:  cfg.ChannelID,
		active:  true,
		closeCh: make(chan struct{}),
	}
}

// Start launches the connect/reconnect loop and the typing sweeper. The
// session connects whenever both a token and a target channel are set,
// and keeps retrying until Close.
func (s *Session) Start() {
	s.startRun()
	s.sweepOnce.Do(func() { go s.sweepLoop() })
}

// startRun spawns the connect loop unless one is already in flight; at
// most one loop exists at any moment.
func (s *Session) startRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.isClosed() {
		return
	}
	s.running = true
	go s.run()
}

// Close is the explicit user-initiated sign-out: the only way into the
// terminal state.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		s.setState(StateClosed)
	})
}

// Send transmits a message. Sends while not joined are silently
// dropped, as are empty ones; returns whether the frame went out.
func (s *Session) Send(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	conn := s.joinedConn()
	if conn == nil {
		return false
	}
	return s.write(conn, models.ClientFrame{Type: models.FrameMessage, Content: content})
}

// Reply is Send with a reply-to reference.
func (s *Session) Reply(content, replyToID string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	conn := s.joinedConn()
	if conn == nil {
		return false
	}
	return s.write(conn, models.ClientFrame{Type: models.FrameMessage, Content: content, ReplyToID: replyToID})
}

// Typing signals that the local user is typing, debounced so rapid
// keystrokes do not flood the relay.
func (s *Session) Typing() {
	s.mu.Lock()
	now := time.Now()
	if now.Sub(s.lastTyping) < s.cfg.TypingDebounce {
		s.mu.Unlock()
		return
	}
	s.lastTyping = now
	s.mu.Unlock()

	if conn := s.joinedConn(); conn != nil {
		s.write(conn, models.ClientFrame{Type: models.FrameTyping})
	}
}

// SwitchChannel retargets the session over the live socket. The local
// message list is cleared the instant the switch happens and is
// repopulated by the server's history frame; the transport is not
// reopened.
func (s *Session) SwitchChannel(channelID string) {
	s.mu.Lock()
	s.target = channelID
	s.messages = nil
	conn := s.conn
	s.mu.Unlock()

	s.typing.clear()
	s.handler.OnHistory(nil)

	if conn != nil {
		s.write(conn, models.ClientFrame{Type: models.FrameSwitchChannel, ChannelID: channelID})
	}
}

// SetActive marks whether the chat panel is visible. Going active
// clears the unread counter. Unread state is client-local; nothing is
// reported to the server.
func (s *Session) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
	if active {
		s.unread = 0
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) OnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onlineCount
}

func (s *Session) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Session) TypingUsers() []TypingUser {
	return s.typing.active(time.Now())
}

func (s *Session) run() {
	for {
		if s.isClosed() {
			s.exitRun()
			return
		}

		s.mu.Lock()
		token, target := s.token, s.target
		if token == "" || target == "" {
			// Not authenticated (or signed out by an auth failure);
			// nothing to retry against. Clearing running under the same
			// lock as the token read lets SetToken restart the loop
			// without ever doubling it.
			s.running = false
			s.mu.Unlock()
			s.setState(StateDisconnected)
			return
		}
		s.mu.Unlock()

		s.setState(StateConnecting)
		conn, _, err := websocket.DefaultDialer.Dial(s.cfg.ServerURL, nil)
		if err != nil {
			if !s.wait(s.nextDelay()) {
				s.exitRun()
				return
			}
			continue
		}

		if s.isClosed() {
			conn.Close()
			s.exitRun()
			return
		}

		s.mu.Lock()
		s.conn = conn
		target = s.target
		token = s.token
		s.mu.Unlock()

		s.write(conn, models.ClientFrame{Type: models.FrameJoin, Token: token, ChannelID: target})
		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if s.isClosed() {
			s.exitRun()
			return
		}
		s.setState(StateDisconnected)
		if !s.wait(s.nextDelay()) {
			s.exitRun()
			return
		}
	}
}

func (s *Session) exitRun() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.dispatch(payload)
	}
}

func (s *Session) dispatch(payload []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return
	}

	switch head.Type {
	case models.FrameHistory:
		var frame models.HistoryFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			return
		}
		s.mu.Lock()
		if s.state == StateClosed {
			// A replay racing Close must not resurrect the session.
			s.mu.Unlock()
			return
		}
		s.messages = frame.Messages
		changed := s.state != StateJoined
		s.state = StateJoined
		s.attempt = 0
		s.mu.Unlock()
		if changed {
			s.handler.OnStateChange(StateJoined)
		}
		s.handler.OnHistory(frame.Messages)

	case models.FrameMessage:
		var frame models.MessageFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			return
		}
		s.mu.Lock()
		s.messages = append(s.messages, frame.Message)
		if len(s.messages) > maxLocalMessages {
			s.messages = s.messages[len(s.messages)-maxLocalMessages:]
		}
		if !s.active && frame.UserID != s.cfg.Identity.ID {
			s.unread++
		}
		s.mu.Unlock()
		s.handler.OnMessage(frame.Message)

	case models.FrameTyping:
		var frame models.TypingFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			return
		}
		if frame.UserID == s.cfg.Identity.ID {
			return
		}
		s.typing.observe(frame.UserID, frame.Username, time.Now())
		s.handler.OnTyping(frame.UserID, frame.Username)

	case models.FramePresence:
		var frame models.PresenceFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			return
		}
		s.mu.Lock()
		s.onlineCount = frame.OnlineCount
		s.mu.Unlock()
		s.handler.OnPresence(frame.OnlineCount)

	case models.FrameError:
		var frame models.ErrorFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			return
		}
		s.handleErrorFrame(frame)
	}
}

// handleErrorFrame applies the error's effect on session state before
// notifying the handler, so an OnError callback that signs in again
// observes the cleared credentials.
func (s *Session) handleErrorFrame(frame models.ErrorFrame) {
	switch frame.Code {
	case models.CodeInvalidToken, models.CodeRevoked:
		// Credentials are no longer good; stop the retry loop until the
		// user signs in again. Auth failures always surface, never spin.
		s.mu.Lock()
		s.token = ""
		s.mu.Unlock()

	case models.CodeChannelNotFound:
		s.mu.Lock()
		fallback := s.cfg.DefaultChannelID
		retarget := fallback != "" && s.target != fallback
		if retarget {
			s.target = fallback
			s.messages = nil
		}
		conn := s.conn
		token := s.token
		s.mu.Unlock()

		if retarget && conn != nil {
			s.write(conn, models.ClientFrame{Type: models.FrameJoin, Token: token, ChannelID: fallback})
		}
	}

	s.handler.OnError(frame.Code, frame.Message)
}

// SetToken installs fresh credentials after a sign-in. A connect loop
// still in flight picks the token up on its next attempt; one that has
// given up is restarted.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	if token != "" {
		s.startRun()
	}
}

func (s *Session) write(conn *websocket.Conn, frame models.ClientFrame) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, payload) == nil
}

func (s *Session) joinedConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoined {
		return nil
	}
	return s.conn
}

func (s *Session) nextDelay() time.Duration {
	s.mu.Lock()
	attempt := s.attempt
	s.attempt++
	s.mu.Unlock()

	if s.cfg.Backoff != nil {
		return s.cfg.Backoff.delay(attempt)
	}
	return s.cfg.RetryDelay
}

// wait sleeps for d unless the session closes first.
func (s *Session) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.closeCh:
		return false
	case <-timer.C:
		return true
	}
}

func (s *Session) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case now := <-ticker.C:
			for _, id := range s.typing.sweep(now) {
				s.handler.OnTypingExpired(id)
			}
		}
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state == state || s.state == StateClosed && state != StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()
	s.handler.OnStateChange(state)
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}
