package devicews

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("device socket not connected")

// ChannelConfig holds configuration for the device socket.
type ChannelConfig struct {
	// URL of the device's websocket endpoint, e.g. ws://192.168.4.1/ws.
	URL            string
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
	Dialer         *websocket.Dialer
	Clock          clockwork.Clock
}

func DefaultChannelConfig(url string) ChannelConfig {
	return ChannelConfig{
		URL:            url,
		ReconnectDelay: 2 * time.Second,
		WriteTimeout:   10 * time.Second,
		Dialer:         websocket.DefaultDialer,
		Clock:          clockwork.NewRealClock(),
	}
}

type response struct {
	data []byte
	err  error
}

// Channel is a request/response channel over a persistent websocket to
// the device. The firmware answers requests strictly in order, so
// responses are paired with requests first-in first-out. Frames that
// arrive while no request is pending are handed to message listeners.
// A dropped connection is redialed after a fixed delay until the
// context given to Run is cancelled.
type Channel struct {
	cfg ChannelConfig

	mu            sync.Mutex
	conn          *websocket.Conn
	pending       []chan response
	listeners     []func([]byte)
	connListeners []func(bool)
}

func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Channel{cfg: cfg}
}

// OnMessage registers a listener for frames the device pushes on its
// own. Register listeners before calling Run.
func (c *Channel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// OnConnectionChange registers a listener fired with true on every
// successful dial and false on every drop. Register before calling Run.
func (c *Channel) OnConnectionChange(fn func(connected bool)) {
	c.mu.Lock()
	c.connListeners = append(c.connListeners, fn)
	c.mu.Unlock()
}

func (c *Channel) notifyConnection(connected bool) {
	c.mu.Lock()
	listeners := append(([]func(bool))(nil), c.connListeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(connected)
	}
}

// Connected reports whether the socket is currently up.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run dials the device and keeps the connection alive until ctx is
// cancelled. It blocks; run it on its own goroutine.
func (c *Channel) Run(ctx context.Context) {
	for {
		if err := c.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("url", c.cfg.URL).Msg("device socket dropped, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-c.cfg.Clock.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Channel) connectAndRead(ctx context.Context) error {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Info().Str("url", c.cfg.URL).Msg("device socket connected")
	c.notifyConnection(true)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.dropConnection(err)
			return err
		}
		c.dispatch(message)
	}
}

func (c *Channel) dispatch(message []byte) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		waiter := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		waiter <- response{data: message}
		return
	}
	listeners := append(([]func([]byte))(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(message)
	}
}

// dropConnection fails every in-flight request. Their senders would
// otherwise wait for responses that can no longer be paired.
func (c *Channel) dropConnection(cause error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	hadConn := c.conn != nil
	if hadConn {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	for _, waiter := range pending {
		waiter <- response{err: cause}
	}
	if hadConn {
		c.notifyConnection(false)
	}
}

// Request writes a frame to the device and waits for the answer that
// pairs with it.
func (c *Channel) Request(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}

	waiter := make(chan response, 1)
	c.pending = append(c.pending, waiter)

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err := conn.WriteMessage(websocket.TextMessage, payload)
	c.mu.Unlock()

	if err != nil {
		c.dropConnection(err)
		return nil, err
	}

	select {
	case resp := <-waiter:
		return resp.data, resp.err
	case <-ctx.Done():
		// The slot stays in the queue so later responses keep their
		// pairing; the buffered channel absorbs the orphaned answer.
		return nil, ctx.Err()
	}
}
