package signaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/internal/utils"
	"face-tracking-recorder/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ============================================================
// CONSTANTS
// ============================================================

const (
	PingInterval      = 10 * time.Second
	InitialRetryDelay = 1 * time.Second
	MaxRetryDelay     = 30 * time.Second
	MaxRetries        = 10
	HandshakeTimeout  = 10 * time.Second
	WriteTimeout      = 10 * time.Second
	ReadTimeout       = 3 * PingInterval
)

var ErrClosed = errors.New("signaling client is closed")

// Handler receives messages of one type.
type Handler func(msg Message)

// ============================================================
// SIGNALING CLIENT
// ============================================================

// Client keeps one outbound websocket to the signaling server, registers
// under PeerID and reconnects with exponential backoff.
type Client struct {
	url    string
	PeerID string
	log    *logrus.Entry

	connMu sync.RWMutex
	conn   *websocket.Conn
	// writeMu serializes writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]Handler

	reconnectMu sync.Mutex
	retrying    bool

	retryDelay time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

func NewClient(cfg models.RemoteConfig, log logrus.FieldLogger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:        cfg.SignalingURL,
		PeerID:     cfg.PeerID,
		log:        logger.Component(log, "signaling"),
		handlers:   make(map[string][]Handler),
		retryDelay: InitialRetryDelay,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// On registers a handler for a message type. Handlers run on the reader
// goroutine and must not block.
func (c *Client) On(msgType string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[msgType] = append(c.handlers[msgType], h)
}

func (c *Client) emit(msg Message) {
	c.handlersMu.RLock()
	hs := c.handlers[msg.Type]
	c.handlersMu.RUnlock()

	if len(hs) == 0 {
		c.log.Debugf("No handler for %q", msg.Type)
		return
	}
	for _, h := range hs {
		h(msg)
	}
}

func (c *Client) IsClosed() bool {
	return c.ctx.Err() != nil
}

// ============================================================
// CONNECTION
// ============================================================

// Connect dials the server and registers. It fails fast; reconnects after
// a later disconnect happen in the background.
func (c *Client) Connect(ctx context.Context) error {
	if c.IsClosed() {
		return ErrClosed
	}

	wsURL := utils.WithQuery(c.url, "peer", c.PeerID)
	c.log.Infof("🔌 Connecting to signaling server %s", c.url)

	dialer := &websocket.Dialer{HandshakeTimeout: HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, http.Header{
		"User-Agent": {"face-tracking-recorder/1.0"},
	})
	if err != nil {
		c.logDialError(resp, err)
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	return c.attach(conn)
}

// attach registers over a freshly dialed conn and starts its reader and
// pinger. A client closed meanwhile gets ErrClosed and the conn is dropped.
func (c *Client) attach(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	conn.SetPingHandler(func(appData string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(WriteTimeout))
	})

	c.connMu.Lock()
	if c.IsClosed() {
		c.connMu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.connMu.Unlock()

	if err := c.Send(Message{Type: models.SignalRegister}); err != nil {
		c.detach(conn)
		return fmt.Errorf("register: %w", err)
	}

	// Close cancels before it takes connMu and waits on wg after, so the
	// Add below either happens before that Wait or not at all.
	c.connMu.Lock()
	if c.IsClosed() || c.conn != conn {
		c.connMu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.wg.Add(2)
	c.connMu.Unlock()

	c.log.Infof("✅ Connected as %q", c.PeerID)

	go c.handleMessages(conn)
	go c.pingPong(conn)
	return nil
}

// detach forgets conn if it is still the current one and closes it.
func (c *Client) detach(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	conn.Close()
}

func (c *Client) logDialError(resp *http.Response, err error) {
	if resp != nil {
		c.log.Errorf("❌ HTTP Status: %d", resp.StatusCode)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(body) > 0 {
			c.log.Errorf("❌ Response: %s", string(body))
		}
	}
	c.log.Errorf("❌ WebSocket error: %v", err)
}

// ============================================================
// MESSAGE HANDLING
// ============================================================

func (c *Client) handleMessages(conn *websocket.Conn) {
	defer c.wg.Done()
	defer c.log.Debug("🔌 Message handler stopped")

	for {
		conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if c.IsClosed() {
				return
			}
			c.log.Warnf("❌ WebSocket read error: %v", err)
			go c.handleDisconnect(conn)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			msg, err := Unmarshal(data)
			if err != nil {
				c.log.Warnf("⚠️  %v", err)
				continue
			}
			switch msg.Type {
			case models.SignalPong:
			case models.SignalError:
				c.log.Errorf("❌ Server error: %s", msg.Data)
				c.emit(msg)
			default:
				c.emit(msg)
			}
		case websocket.TextMessage:
			c.log.Debugf("📄 Text message (unexpected): %s", string(data))
		}
	}
}

// Send writes one message, stamping From with our peer ID.
func (c *Client) Send(msg Message) error {
	if c.IsClosed() {
		return ErrClosed
	}
	msg.From = c.PeerID

	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("websocket connection is nil")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline failed: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("write message failed: %w", err)
	}

	c.log.Tracef("📤 Sent %s (%d bytes protobuf)", msg.Type, len(data))
	return nil
}

func (c *Client) pingPong(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.connMu.RLock()
			current := c.conn
			c.connMu.RUnlock()
			if current != conn {
				return
			}
			if err := c.Send(Message{Type: models.SignalPing}); err != nil {
				c.log.Warnf("❌ Ping failed: %v", err)
				return
			}
		}
	}
}

// ============================================================
// RECONNECTION
// ============================================================

func (c *Client) handleDisconnect(dead *websocket.Conn) {
	c.reconnectMu.Lock()
	if c.retrying || c.IsClosed() {
		c.reconnectMu.Unlock()
		return
	}
	c.retrying = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.retrying = false
		c.reconnectMu.Unlock()
	}()

	c.detach(dead)

	c.log.Info("🔄 Starting reconnection process...")
	if err := c.reconnectWithBackoff(); err != nil {
		c.log.Errorf("❌ Reconnection failed: %v", err)
	}
}

func (c *Client) reconnectWithBackoff() error {
	retryInterval := c.retryDelay

	for attempt := 1; attempt <= MaxRetries; attempt++ {
		select {
		case <-c.ctx.Done():
			return nil
		case <-time.After(retryInterval):
		}

		c.log.Infof("🔄 Reconnection attempt %d/%d", attempt, MaxRetries)
		if err := c.Connect(c.ctx); err != nil {
			c.log.Warnf("❌ Reconnection attempt %d failed: %v", attempt, err)
			retryInterval = nextRetryInterval(retryInterval, MaxRetryDelay)
			continue
		}

		c.log.Info("✅ Reconnected successfully!")
		return nil
	}

	return fmt.Errorf("max reconnection attempts (%d) reached", MaxRetries)
}

func nextRetryInterval(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// ============================================================
// SHUTDOWN
// ============================================================

// Close sends a best-effort quit and tears the connection down.
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.Send(Message{Type: models.SignalQuit})
		c.cancel()

		c.connMu.Lock()
		if c.conn != nil {
			c.writeMu.Lock()
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			closeErr = c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			c.log.Warn("⚠️  Shutdown timeout")
		}
		c.log.Info("🛑 Signaling client closed")
	})
	return closeErr
}
