// Package websockets manages active websocket connections and messages received
// from and sent to them
package websockets

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/blindspot/blindspot/auth"
	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/db"
	"github.com/blindspot/blindspot/feeds"
	"github.com/blindspot/blindspot/util"
	"github.com/go-playground/log"
	"github.com/gorilla/websocket"
)

const pingWriteTimeout = time.Second * 30

var (
	// Overrideable for faster tests
	pingTimer = time.Minute

	upgrader = websocket.Upgrader{
		HandshakeTimeout: 5 * time.Second,
		CheckOrigin: func(_ *http.Request) bool {
			return true
		},
	}

	errSessionEnded = errors.New("session ended")
)

// errInvalidPayload denotes a malformed messages received from the client
type errInvalidPayload []byte

func (e errInvalidPayload) Error() string {
	return fmt.Sprintf("invalid message: %s", string(e))
}

// errInvalidFrame denotes an invalid websocket frame in some other way than
// errInvalidMessage
type errInvalidFrame string

func (e errInvalidFrame) Error() string {
	return string(e)
}

// Service binds websocket clients and HTTP handlers to the document store,
// live feeds and sessions
type Service struct {
	store db.Store
	feeds *feeds.Manager
	auth  *auth.Provider

	mu      sync.Mutex
	clients map[string]map[*Client]struct{} // by session ID
}

// NewService creates a Service. Connections of ended or expired sessions are
// closed.
func NewService(store db.Store, manager *feeds.Manager, provider *auth.Provider,
) *Service {
	svc := &Service{
		store:   store,
		feeds:   manager,
		auth:    provider,
		clients: make(map[string]map[*Client]struct{}),
	}
	provider.OnEnd(svc.closeSession)
	return svc
}

// Feeds returns the feed manager of the service
func (svc *Service) Feeds() *feeds.Manager {
	return svc.feeds
}

// Auth returns the session provider of the service
func (svc *Service) Auth() *auth.Provider {
	return svc.auth
}

// ClientCount returns the number of connected websocket clients
func (svc *Service) ClientCount() (n int) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, cls := range svc.clients {
		n += len(cls)
	}
	return
}

func (svc *Service) register(c *Client) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	cls, ok := svc.clients[c.session.ID]
	if !ok {
		cls = make(map[*Client]struct{})
		svc.clients[c.session.ID] = cls
	}
	cls[c] = struct{}{}
}

func (svc *Service) unregister(c *Client) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	cls := svc.clients[c.session.ID]
	delete(cls, c)
	if len(cls) == 0 {
		delete(svc.clients, c.session.ID)
	}
}

func (svc *Service) closeSession(s auth.Session) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	for c := range svc.clients[s.ID] {
		c.Close(errSessionEnded)
	}
}

// Client stores and manages a websocket-connected remote client and its
// interaction with the server and database
type Client struct {
	svc     *Service
	ip      string
	session auth.Session

	// Underlying websocket connection
	conn *websocket.Conn

	// Internal message receiver channel
	receive chan receivedMessage

	// Only used to pass messages from the Send method.
	sendExternal chan []byte

	// Signals a pending feed update
	updated chan struct{}

	// Close the client and free all used resources
	close chan error

	mu sync.Mutex
	// Incremented on every synchronisation. Updates tagged with an older
	// generation are discarded.
	gen     uint64
	pending *feeds.Update
}

type receivedMessage struct {
	typ int
	msg []byte
}

// Handler is an http.HandlerFunc that responds to new websocket connection
// requests. Requires a live session.
func (svc *Service) Handler(w http.ResponseWriter, r *http.Request) {
	ip, err := auth.GetIP(r)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	var token string
	if c, err := r.Cookie(auth.CookieName); err == nil {
		token = c.Value
	}
	s, err := svc.auth.Lookup(r.Context(), token)
	if err != nil {
		http.Error(w, err.Error(), common.StatusCode(err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websockets: %s: %s", ip, err)
		return
	}

	c := svc.newClient(conn, ip, s)
	if err := c.listen(); err != nil {
		c.logError(err)
	}
}

// newClient creates a new websocket client
func (svc *Service) newClient(conn *websocket.Conn, ip string, s auth.Session,
) *Client {
	return &Client{
		svc:     svc,
		ip:      ip,
		session: s,
		close:   make(chan error, 2),
		receive: make(chan receivedMessage),
		// Allows for ~6 seconds of messages at 0.2 second intervals, until the
		// buffer overflows.
		sendExternal: make(chan []byte, 1<<5),
		updated:      make(chan struct{}, 1),
		conn:         conn,
	}
}

// IP returns the IP of the client
func (c *Client) IP() string {
	return c.ip
}

// Listen listens for incoming messages on the channels and processes them
func (c *Client) listen() error {
	c.svc.register(c)
	go c.receiverLoop()

	// Clean up, when loop exits
	err := c.listenerLoop()
	c.svc.unregister(c)
	return c.closeConnections(err)
}

// Separate function to ease error handling of the internal client loop
func (c *Client) listenerLoop() error {
	// Periodically ping the client to ensure external proxies and CDNs do not
	// close the connection. Those have a tendency of sending 1001 to both ends
	// after rather short timeout, if no messages have been sent.
	ping := time.NewTicker(pingTimer)
	defer ping.Stop()

	// Sessions expire while connected
	var expired <-chan time.Time
	if !c.session.Expires.IsZero() {
		t := time.NewTimer(time.Until(c.session.Expires))
		defer t.Stop()
		expired = t.C
	}

	for {
		select {
		case err := <-c.close:
			return err
		case <-expired:
			return errSessionEnded
		case msg := <-c.sendExternal:
			if err := c.send(msg); err != nil {
				return err
			}
		case <-c.updated:
			if err := c.flushUpdate(); err != nil {
				return err
			}
		case <-ping.C:
			deadline := time.Now().Add(pingWriteTimeout)
			err := c.conn.WriteControl(websocket.PingMessage, nil, deadline)
			if err != nil {
				return err
			}
		case msg := <-c.receive:
			if err := c.handleMessage(msg.typ, msg.msg); err != nil {
				return err
			}
		}
	}
}

// Close all connections an goroutines associated with the Client
func (c *Client) closeConnections(err error) error {
	// Close update feed, if any
	c.svc.feeds.Remove(c)

	// Close receiver loop
	c.Close(nil)

	// Send the client the reason for closing
	var closeType int
	switch err.(type) {
	case *websocket.CloseError:
		switch err.(*websocket.CloseError).Code {

		// Normal client-side websocket closure
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			err = nil
			closeType = websocket.CloseNormalClosure

		// Ignore abnormal websocket closure as a network fault
		case websocket.CloseAbnormalClosure:
			err = nil
		}
	case nil:
		closeType = websocket.CloseNormalClosure
	default:
		if err == errSessionEnded {
			err = nil
			closeType = websocket.ClosePolicyViolation
		} else {
			c.sendMessage(common.MessageInvalid, err.Error())
			closeType = websocket.CloseInvalidFramePayloadData
		}
	}

	// Try to send the client a close frame. This might fail, so ignore any
	// errors.
	if closeType != 0 {
		msg := websocket.FormatCloseMessage(closeType, "")
		deadline := time.Now().Add(time.Second)
		c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	}

	// Close socket
	closeError := c.conn.Close()
	if closeError != nil {
		err = util.WrapError(closeError.Error(), err)
	}

	return err
}

// Send a message to the client. Can be used concurrently.
func (c *Client) Send(msg []byte) {
	select {
	case c.sendExternal <- msg:
	default:
		c.Close(errors.New("send buffer overflow"))
	}
}

// Sends a message to the client. Not safe for concurrent use.
func (c *Client) send(msg []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Format a message type as JSON and send it to the client. Not safe for
// concurrent use.
func (c *Client) sendMessage(typ common.MessageType, msg interface{}) error {
	encoded, err := common.EncodeMessage(typ, msg)
	if err != nil {
		return err
	}
	return c.send(encoded)
}

// receiverLoop proxies the blocking conn.ReadMessage() into the main client
// select loop.
func (c *Client) receiverLoop() {
	for {
		var (
			err error
			msg receivedMessage
		)
		msg.typ, msg.msg, err = c.conn.ReadMessage() // Blocking
		if err != nil {
			c.Close(err)
			return
		}

		select {
		case <-c.close:
			return
		case c.receive <- msg:
		}
	}
}

// handleMessage parses a message received from the client through websockets
func (c *Client) handleMessage(msgType int, msg []byte) error {
	if msgType != websocket.TextMessage {
		return errInvalidFrame("only text frames allowed")
	}
	if len(msg) < 2 {
		return errInvalidPayload(msg)
	}

	// First two characters of a message define its type
	uncast, err := strconv.ParseUint(string(msg[:2]), 10, 8)
	if err != nil {
		return errInvalidPayload(msg)
	}
	return c.runHandler(common.MessageType(uncast), msg)
}

// logError writes the client's websocket error to the error log
func (c *Client) logError(err error) {
	if !common.CanIgnoreClientError(err) {
		log.Errorf("websockets: by %s: %s", c.ip, err)
	}
}

// Close closes a websocket connection with the provided status code and
// optional reason
func (c *Client) Close(err error) {
	select {
	case <-c.close:
	default:
		// Exit both listenerLoop and receiverLoop
		for i := 0; i < 2; i++ {
			select {
			case c.close <- err:
			default:
			}
		}
	}
}
