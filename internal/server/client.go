package server

import (
	"context"
	"log"
	"maps"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

type Topic string

const (
	TopicDM      Topic = "dm"
	TopicChannel Topic = "channel"
	TopicGuild   Topic = "guild"
)

// Client is one websocket session. It holds at most one subscription per topic.
type Client struct {
	id       string
	conn     *websocket.Conn
	registry *Registry
	log      *log.Logger
	send     chan []byte
	subs     map[Topic]string
	botID    string
	subsLock sync.RWMutex
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(conn *websocket.Conn, r *Registry, l *log.Logger) *Client {
	return &Client{
		conn:     conn,
		registry: r,
		log:      l,
		send:     make(chan []byte, sendBufferSize),
		subs:     make(map[Topic]string),
		stop:     make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("session %s: write exiting", c.id)
	}()

	for {
		select {
		case msg := <-c.send:
			if !c.sendMessage(websocket.TextMessage, msg) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.registry.Disconnect(c.id)
		c.log.Printf("session %s: read exiting", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.registry.HandleControlMessage(context.Background(), c.id, raw)
	}
}

// queueMessage enqueues msg without blocking. A full buffer drops the message.
func (c *Client) queueMessage(msg []byte) bool {
	if msg == nil {
		return false
	}

	select {
	case c.send <- msg:
	default:
		c.log.Printf("session %s: send buffer full, dropping message", c.id)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// subscribe sets the subscription for topic, replacing any previous one.
func (c *Client) subscribe(topic Topic, id string) (previous string) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	previous = c.subs[topic]
	c.subs[topic] = id
	return previous
}

func (c *Client) unsubscribe(topic Topic) string {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	id := c.subs[topic]
	delete(c.subs, topic)
	return id
}

func (c *Client) subscribedTo(topic Topic, id string) bool {
	c.subsLock.RLock()
	defer c.subsLock.RUnlock()

	sub, ok := c.subs[topic]
	return ok && sub == id
}

// Subscriptions returns a copy of the session's current subscriptions.
func (c *Client) Subscriptions() map[Topic]string {
	c.subsLock.RLock()
	defer c.subsLock.RUnlock()

	return maps.Clone(c.subs)
}

func (c *Client) setBotID(id string) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	c.botID = id
}

func (c *Client) BotID() string {
	c.subsLock.RLock()
	defer c.subsLock.RUnlock()
	return c.botID
}
