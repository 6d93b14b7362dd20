package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/bbielsa/kvsrtc/internal/domain"
)

// DefaultPingInterval keeps idle signaling connections open through proxies.
const DefaultPingInterval = 5 * time.Minute

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("signal: connection closed")

// outbound is the envelope sent to the signaling service.
type outbound struct {
	Action            string `json:"action"`
	RecipientClientID string `json:"recipientClientId"`
	SenderClientID    string `json:"senderClientId"`
	MessagePayload    string `json:"messagePayload"`
}

// inbound is the envelope received from the signaling service. The service
// names the action "messageType"; "action" is accepted for peers that echo
// the outbound form.
type inbound struct {
	Action            string                 `json:"action"`
	MessageType       string                 `json:"messageType"`
	SenderClientID    string                 `json:"senderClientId"`
	RecipientClientID string                 `json:"recipientClientId"`
	MessagePayload    string                 `json:"messagePayload"`
	StatusResponse    *domain.StatusResponse `json:"statusResponse"`
}

// Options configures a Client.
type Options struct {
	// PingInterval is the WebSocket keepalive period. Zero uses
	// DefaultPingInterval, a negative value disables pings.
	PingInterval time.Duration

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// LoggerFactory creates the "signal" logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Client owns one WebSocket connection to the signaling endpoint.
type Client struct {
	conn     *websocket.Conn
	listener domain.Listener
	log      logging.LeveledLogger

	mu        sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Connect dials the signed signaling URL and starts the read loop. A failed
// handshake is returned as a *domain.ConnectionError; after a successful
// Connect, events are only reported through listener.
func Connect(ctx context.Context, signedURL string, listener domain.Listener, opts Options) (*Client, error) {
	log := newLogger(opts.LoggerFactory)

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	log.Infof("connecting to %s", redact(signedURL))

	conn, resp, err := dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			err = fmt.Errorf("%w (http %d: %s)", err, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, &domain.ConnectionError{URL: redact(signedURL), Err: err}
	}

	c := &Client{
		conn:     conn,
		listener: listener,
		log:      log,
		closed:   make(chan struct{}),
	}

	go c.readLoop()

	interval := opts.PingInterval
	if interval == 0 {
		interval = DefaultPingInterval
	}
	if interval > 0 {
		go c.pingLoop(interval)
	}

	return c, nil
}

// Send writes one message. Safe for concurrent use.
func (c *Client) Send(msg domain.Message) error {
	data, err := json.Marshal(outbound{
		Action:            string(msg.Action),
		RecipientClientID: msg.RecipientClientID,
		SenderClientID:    msg.SenderClientID,
		MessagePayload:    msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Action, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.log.Debugf(">>> %s", msg.Action)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Action, err)
	}
	return nil
}

// Close shuts down the WebSocket connection. Subsequent calls are no-ops.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.closed)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.mu.Unlock()
		err = c.conn.Close()
		c.log.Infof("connection closed")
	})
	return err
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.log.Warnf("read error: %v", err)
			c.listener.OnException(fmt.Errorf("signaling read: %w", err))
			return
		}

		c.log.Debugf("<<< %s", string(data))

		msg, err := parse(data)
		if err != nil {
			c.log.Warnf("dropping frame: %v", err)
			c.listener.OnProtocolError(err)
			continue
		}
		c.listener.OnMessage(msg)
	}
}

// parse decodes one inbound frame.
func parse(data []byte) (domain.Message, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return domain.Message{}, &domain.ProtocolError{Frame: string(data), Err: fmt.Errorf("unmarshal frame: %w", err)}
	}

	action := domain.Action(in.MessageType)
	if action == "" {
		action = domain.Action(in.Action)
	}
	if !action.Valid() {
		return domain.Message{}, &domain.ProtocolError{Frame: string(data), Err: fmt.Errorf("unknown action %q", action)}
	}
	if action != domain.ActionStatusResponse && in.MessagePayload == "" {
		return domain.Message{}, &domain.ProtocolError{Frame: string(data), Err: fmt.Errorf("%s without payload", action)}
	}

	return domain.Message{
		Action:            action,
		SenderClientID:    in.SenderClientID,
		RecipientClientID: in.RecipientClientID,
		Payload:           in.MessagePayload,
		Status:            in.StatusResponse,
	}, nil
}

func (c *Client) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.isClosed() {
				c.mu.Unlock()
				return
			}
			err := c.conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(5*time.Second),
			)
			c.mu.Unlock()
			if err != nil {
				c.log.Warnf("ping error: %v", err)
				return
			}
		}
	}
}

// redact drops the signature and security token from a signed URL before logging.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	for _, k := range []string{"X-Amz-Signature", "X-Amz-Security-Token", "X-Amz-Credential"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func newLogger(f logging.LoggerFactory) logging.LeveledLogger {
	if f == nil {
		return logging.NewDefaultLeveledLoggerForScope("signal", logging.LogLevelDisabled, io.Discard)
	}
	return f.NewLogger("signal")
}
