package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	apiTimeout     = 10 * time.Second
	reconnectDelay = 5 * time.Second
	writeWait      = 10 * time.Second
)

// Sender describes the sender of an inbound message event
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
}

// Event is one push event from the OneBot implementation
type Event struct {
	Time        int64       `json:"time"`
	SelfID      int64       `json:"self_id"`
	PostType    string      `json:"post_type"`
	MessageType string      `json:"message_type"` // group or private
	SubType     string      `json:"sub_type"`
	MessageID   json.Number `json:"message_id"`
	UserID      int64       `json:"user_id"`
	GroupID     int64       `json:"group_id"`
	RawMessage  string      `json:"raw_message"`
	Sender      Sender      `json:"sender"`
}

// IsGroupMessage checks whether the event is a group message
func (e *Event) IsGroupMessage() bool {
	return e.PostType == "message" && e.MessageType == "group"
}

// IsPrivateMessage checks whether the event is a private message
func (e *Event) IsPrivateMessage() bool {
	return e.PostType == "message" && e.MessageType == "private"
}

// EventHandler is the callback for inbound events
type EventHandler func(evt *Event)

type apiRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
	Echo   string         `json:"echo"`
}

type apiResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Echo    string          `json:"echo"`
}

// Client is a forward-WebSocket OneBot v11 client
type Client struct {
	wsURL       string
	accessToken string
	log         *zap.SugaredLogger

	onEvent EventHandler

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan *apiResponse
}

// NewClient creates a OneBot client for a forward WebSocket endpoint
func NewClient(wsURL, accessToken string, log *zap.SugaredLogger) *Client {
	return &Client{
		wsURL:       wsURL,
		accessToken: accessToken,
		log:         log,
		pending:     make(map[string]chan *apiResponse),
	}
}

// OnEvent sets the event handler. Must be called before Start.
func (c *Client) OnEvent(handler EventHandler) {
	c.onEvent = handler
}

// Start connects and reads events until ctx is cancelled, reconnecting on
// connection loss.
func (c *Client) Start(ctx context.Context) error {
	for {
		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warnw("onebot connection lost, reconnecting", "error", err, "delay", reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	header := http.Header{}
	if c.accessToken != "" {
		header.Set("Authorization", "Bearer "+c.accessToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}
	c.log.Infow("onebot connected", "url", c.wsURL)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.failPendingLocked()
		c.mu.Unlock()
		conn.Close()
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		c.dispatch(payload)
	}
}

// dispatch routes one inbound frame: API responses carry an echo field,
// everything else is a push event.
func (c *Client) dispatch(payload []byte) {
	var probe struct {
		Echo     string `json:"echo"`
		PostType string `json:"post_type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		c.log.Debugw("onebot frame not json", "error", err)
		return
	}

	if probe.Echo != "" {
		var resp apiResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.Echo]
		if ok {
			delete(c.pending, resp.Echo)
		}
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}
		return
	}

	if probe.PostType == "" || c.onEvent == nil {
		return
	}
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		c.log.Debugw("onebot event decode failed", "error", err)
		return
	}
	c.onEvent(&evt)
}

func (c *Client) failPendingLocked() {
	for echo, ch := range c.pending {
		close(ch)
		delete(c.pending, echo)
	}
}

// call sends one API request and waits for the echo-matched response
func (c *Client) call(ctx context.Context, action string, params map[string]any) (json.RawMessage, error) {
	echo := uuid.NewString()
	req := apiRequest{Action: action, Params: params, Echo: echo}
	ch := make(chan *apiResponse, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("onebot not connected")
	}
	c.pending[echo] = ch
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(req)
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, echo)
		c.mu.Unlock()
		return nil, fmt.Errorf("write %s request: %w", action, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection closed waiting for %s", action)
		}
		if resp.Status == "failed" {
			return nil, fmt.Errorf("%s failed with retcode %d", action, resp.RetCode)
		}
		return resp.Data, nil
	case <-time.After(apiTimeout):
		c.mu.Lock()
		delete(c.pending, echo)
		c.mu.Unlock()
		return nil, fmt.Errorf("%s timed out", action)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, echo)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// SendGroupMessage sends text to a group and returns the message ID
func (c *Client) SendGroupMessage(ctx context.Context, groupID int64, text string) (string, error) {
	data, err := c.call(ctx, "send_msg", map[string]any{
		"message_type": "group",
		"group_id":     groupID,
		"message":      text,
	})
	if err != nil {
		return "", err
	}
	return parseMessageID(data), nil
}

// SendPrivateMessage sends text to a user and returns the message ID
func (c *Client) SendPrivateMessage(ctx context.Context, userID int64, text string) (string, error) {
	data, err := c.call(ctx, "send_msg", map[string]any{
		"message_type": "private",
		"user_id":      userID,
		"message":      text,
	})
	if err != nil {
		return "", err
	}
	return parseMessageID(data), nil
}

func parseMessageID(data json.RawMessage) string {
	var result struct {
		MessageID json.Number `json:"message_id"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return ""
	}
	return result.MessageID.String()
}

// FormatUserID renders a numeric user ID as the string form used in chat keys
func FormatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}
