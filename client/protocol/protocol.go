package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"neuralchat/models"
	wire "neuralchat/protocol"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrTimeout      = errors.New("request timed out")
)

// RequestError is a fail reply from the server.
type RequestError struct {
	Op     string
	Reason string
}

func (e *RequestError) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return e.Op + ": " + e.Reason
}

// Reason returns the server's explanation for err, or err's text.
func Reason(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Reason
	}
	return err.Error()
}

// Session is what a successful sign-in returns.
type Session struct {
	UserID     string
	Username   string
	Token      string // bearer token for object storage
	StorageURL string
}

// Client speaks the line protocol to the chat service.
//
// Requests are answered in order, so replies are matched to a FIFO of
// waiters. Push packets go to handlers registered with OnPacket; handlers
// run on the read loop and must not block.
type Client struct {
	conn     net.Conn
	reader   *wire.LineReader
	mu       sync.Mutex
	sendMu   sync.Mutex
	handlers map[string][]func(*wire.Packet)

	pendMu  sync.Mutex
	pending []chan *wire.Packet

	connected    atomic.Bool
	done         chan struct{}
	closeOnce    sync.Once
	pingInterval time.Duration
	timeout      time.Duration

	pongMu   sync.RWMutex
	lastPong time.Time
	pingSent time.Time
	rtt      time.Duration
}

// NewClient creates a client; timeout bounds each request without its own deadline.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		handlers:     make(map[string][]func(*wire.Packet)),
		done:         make(chan struct{}),
		pingInterval: 30 * time.Second,
		timeout:      timeout,
	}
}

// Connect dials host:port over TCP, or a ws:// or wss:// URL over WebSocket.
func (c *Client) Connect(addr string) error {
	var conn net.Conn
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		ws, _, err := dialer.Dial(addr, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		conn = wire.NewWSConn(ws)
	} else {
		tcp, err := net.DialTimeout("tcp", addr, 10*time.Second)
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		conn = tcp
	}
	c.attach(conn)
	return nil
}

func (c *Client) attach(conn net.Conn) {
	c.conn = conn
	c.reader = wire.NewLineReader(conn, wire.MaxReplyLine)
	c.lastPong = time.Now()
	c.connected.Store(true)

	// Handle pong to track last response time and round trip
	c.OnPacket(wire.TypePong, func(*wire.Packet) {
		c.pongMu.Lock()
		c.lastPong = time.Now()
		if !c.pingSent.IsZero() {
			c.rtt = c.lastPong.Sub(c.pingSent)
			c.pingSent = time.Time{}
		}
		c.pongMu.Unlock()
	})

	go c.pingLoop()
	go c.readLoop()
}

// Disconnect gracefully disconnects from the server
func (c *Client) Disconnect() error {
	if !c.connected.Load() {
		return nil
	}
	c.send(wire.TypeBye)
	time.Sleep(100 * time.Millisecond)
	c.shutdown()
	return c.conn.Close()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)

		c.pendMu.Lock()
		for _, ch := range c.pending {
			close(ch)
		}
		c.pending = nil
		c.pendMu.Unlock()
	})
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// LastPongTime returns time since last pong response
func (c *Client) LastPongTime() time.Duration {
	c.pongMu.RLock()
	defer c.pongMu.RUnlock()
	return time.Since(c.lastPong)
}

// RTT returns the last measured ping round trip, zero before the first pong.
func (c *Client) RTT() time.Duration {
	c.pongMu.RLock()
	defer c.pongMu.RUnlock()
	return c.rtt
}

// Ping sends a heartbeat; the pong updates RTT.
func (c *Client) Ping() error {
	c.pongMu.Lock()
	c.pingSent = time.Now()
	c.pongMu.Unlock()
	return c.send(wire.TypePing)
}

// pingLoop sends periodic pings
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.connected.Load() {
				c.Ping()
			}
		}
	}
}

// readLoop reads packets from server
func (c *Client) readLoop() {
	for {
		line, err := c.reader.ReadLine()
		if err != nil {
			if c.connected.Load() {
				log.Warn().Err(err).Msg("connection lost")
				c.shutdown()
				c.notifyHandlers(&wire.Packet{Type: wire.TypeBye, Fields: []string{"connection_lost"}})
			}
			return
		}

		pkt, err := wire.ParsePacket(line)
		if err != nil {
			continue
		}

		if wire.IsPush(pkt.Type) {
			if pkt.Type == wire.TypeBye {
				c.shutdown()
			}
			c.notifyHandlers(pkt)
			continue
		}

		c.pendMu.Lock()
		if len(c.pending) == 0 {
			c.pendMu.Unlock()
			log.Warn().Str("type", pkt.Type).Msg("unexpected reply")
			continue
		}
		waiter := c.pending[0]
		c.pending = c.pending[1:]
		c.pendMu.Unlock()

		// buffered; a waiter that gave up simply never reads it
		waiter <- pkt
	}
}

// notifyHandlers notifies registered handlers
func (c *Client) notifyHandlers(pkt *wire.Packet) {
	c.mu.Lock()
	handlers := c.handlers[pkt.Type]
	c.mu.Unlock()

	for _, h := range handlers {
		h(pkt)
	}
}

// OnPacket registers a handler for a packet type
func (c *Client) OnPacket(packetType string, handler func(*wire.Packet)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[packetType] = append(c.handlers[packetType], handler)
}

// send writes a packet that expects no reply
func (c *Client) send(pktType string, fields ...string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.connected.Load() {
		return ErrNotConnected
	}
	_, err := c.conn.Write([]byte(wire.FormatPacket(pktType, fields...)))
	return err
}

// request sends a packet and waits for its reply.
func (c *Client) request(ctx context.Context, pktType string, fields ...string) (*wire.Packet, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reply := make(chan *wire.Packet, 1)

	c.sendMu.Lock()
	if !c.connected.Load() {
		c.sendMu.Unlock()
		return nil, ErrNotConnected
	}
	c.pendMu.Lock()
	c.pending = append(c.pending, reply)
	c.pendMu.Unlock()
	_, err := c.conn.Write([]byte(wire.FormatPacket(pktType, fields...)))
	c.sendMu.Unlock()
	if err != nil {
		// the reply queue is out of step now; the read loop tears down
		c.conn.Close()
		return nil, fmt.Errorf("%s: %w", pktType, err)
	}

	select {
	case pkt, ok := <-reply:
		if !ok {
			return nil, ErrNotConnected
		}
		if pkt.Type == wire.TypeFail {
			if len(pkt.Fields) < 2 {
				return nil, &RequestError{Reason: pkt.Field(0)}
			}
			return nil, &RequestError{Op: pkt.Field(0), Reason: pkt.Field(1)}
		}
		return pkt, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", pktType, ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

// expectOK performs a request whose successful reply is ok|op[|fields].
func (c *Client) expectOK(ctx context.Context, pktType string, fields ...string) ([]string, error) {
	pkt, err := c.request(ctx, pktType, fields...)
	if err != nil {
		return nil, err
	}
	if pkt.Type != wire.TypeOk || pkt.Field(0) != pktType {
		return nil, fmt.Errorf("%s: unexpected reply %q: %w", pktType, pkt.Type, wire.ErrInvalidPacket)
	}
	return pkt.Fields[1:], nil
}

func (c *Client) expectType(ctx context.Context, want, pktType string, fields ...string) (*wire.Reader, error) {
	pkt, err := c.request(ctx, pktType, fields...)
	if err != nil {
		return nil, err
	}
	if pkt.Type != want {
		return nil, fmt.Errorf("%s: unexpected reply %q: %w", pktType, pkt.Type, wire.ErrInvalidPacket)
	}
	return wire.NewReader(pkt.Fields), nil
}

// Register creates a profile and returns its id
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	fields, err := c.expectOK(ctx, wire.TypeReg, username, password)
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// Auth signs in
func (c *Client) Auth(ctx context.Context, username, password string) (Session, error) {
	fields, err := c.expectOK(ctx, wire.TypeAuth, username, password)
	if err != nil {
		return Session{}, err
	}
	if len(fields) < 4 {
		return Session{}, fmt.Errorf("auth: %w", wire.ErrInvalidPacket)
	}
	return Session{UserID: fields[0], Username: fields[1], Token: fields[2], StorageURL: fields[3]}, nil
}

func (c *Client) FetchProfile(ctx context.Context, id string) (models.Profile, error) {
	r, err := c.expectType(ctx, wire.TypeProfile, wire.TypeProfile, id)
	if err != nil {
		return models.Profile{}, err
	}
	p := r.Profile()
	return p, r.Err()
}

// FetchPeers returns every other profile, online first.
func (c *Client) FetchPeers(ctx context.Context) ([]models.Profile, error) {
	r, err := c.expectType(ctx, wire.TypeUsers, wire.TypeUsers)
	if err != nil {
		return nil, err
	}
	peers := r.Profiles()
	return peers, r.Err()
}

// FetchMessages returns the most recent messages of a conversation, oldest first.
func (c *Client) FetchMessages(ctx context.Context, selector string) ([]models.Message, error) {
	r, err := c.expectType(ctx, wire.TypeHist, wire.TypeHist, selector, strconv.Itoa(wire.HistoryLimit))
	if err != nil {
		return nil, err
	}
	if got := r.String(); got != selector && r.Err() == nil {
		return nil, fmt.Errorf("hist: reply for %q: %w", got, wire.ErrInvalidPacket)
	}
	msgs := r.Messages()
	return msgs, r.Err()
}

// FetchMessage returns one full record with sender name and attachments.
func (c *Client) FetchMessage(ctx context.Context, id string) (models.Message, error) {
	r, err := c.expectType(ctx, wire.TypeRecord, wire.TypeGet, id)
	if err != nil {
		return models.Message{}, err
	}
	m := r.Message()
	return m, r.Err()
}

// InsertMessage stores a message. When attachments > 0 the service holds the
// insert notification until that many attachment records are inserted.
func (c *Client) InsertMessage(ctx context.Context, selector, content string, attachments int) (string, error) {
	fields := []string{selector, content}
	if attachments > 0 {
		fields = append(fields, strconv.Itoa(attachments))
	}
	out, err := c.expectOK(ctx, wire.TypeSend, fields...)
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", fmt.Errorf("send: %w", wire.ErrInvalidPacket)
	}
	return out[0], nil
}

func (c *Client) InsertAttachment(ctx context.Context, a models.Attachment) (string, error) {
	out, err := c.expectOK(ctx, wire.TypeAttach,
		a.MessageID, a.FileName, a.FileType, strconv.FormatInt(a.FileSize, 10),
		a.FileURL, a.StoragePath, a.MimeType)
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", fmt.Errorf("att: %w", wire.ErrInvalidPacket)
	}
	return out[0], nil
}

// UpdateStatus sets own status and last_seen.
func (c *Client) UpdateStatus(ctx context.Context, status string) error {
	_, err := c.expectOK(ctx, wire.TypeStat, status)
	return err
}

// Rename changes own username.
func (c *Client) Rename(ctx context.Context, username string) error {
	_, err := c.expectOK(ctx, wire.TypeName, username)
	return err
}

// Subscribe starts the change feed of a table (messages or profiles).
func (c *Client) Subscribe(ctx context.Context, table string) error {
	_, err := c.expectOK(ctx, wire.TypeSub, table)
	return err
}

// TrackPresence joins the presence channel; a psync push follows.
func (c *Client) TrackPresence(ctx context.Context) error {
	_, err := c.expectOK(ctx, wire.TypeTrack)
	return err
}
