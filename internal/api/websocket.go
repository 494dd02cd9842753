package api

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereceipt/bill-printer/internal/renderer"
	"github.com/thereceipt/bill-printer/internal/session"
	"github.com/thereceipt/bill-printer/pkg/receiptformat"
)

// WebSocket message types. Session events are forwarded under their own
// names (state, notice, devices, device_added, device_removed).
const (
	EventPrint    = "print"
	EventResponse = "response"
	EventError    = "error"
)

const clientBuffer = 256

// WSMessage is a message sent to a websocket client
type WSMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsRequest is a message received from a websocket client
type wsRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server
	closed bool
	mu     sync.Mutex
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := &WSClient{
		conn:   conn,
		send:   make(chan WSMessage, clientBuffer),
		server: s,
	}
	s.addClient(client)
	s.logger.Info("websocket client connected", "remote", conn.RemoteAddr().String())

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.server.logger.Debug("websocket write failed", "err", err)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.server.logger.Info("websocket client disconnected")
	}()

	for {
		var msg wsRequest
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read failed", "err", err)
			}
			return
		}

		c.handleMessage(&msg)
	}
}

func (c *WSClient) handleMessage(msg *wsRequest) {
	switch msg.Event {
	case EventPrint:
		c.handlePrintEvent(msg.Data)
	default:
		c.sendError(fmt.Sprintf("unknown event: %s", msg.Event))
	}
}

// handlePrintEvent queues a receipt sent as {"items": [...], "storeName": "...", "footer": "..."}
func (c *WSClient) handlePrintEvent(data json.RawMessage) {
	var req receiptRequest
	if len(data) == 0 {
		c.sendError("items are required")
		return
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(fmt.Sprintf("invalid print request: %v", err))
		return
	}

	s := c.server
	job := &receiptformat.Job{
		Version:   receiptformat.Version,
		Items:     req.Items,
		StoreName: req.StoreName,
		Footer:    req.Footer,
	}
	if job.StoreName == "" {
		job.StoreName = s.storeName
	}
	if job.Footer == "" {
		job.Footer = s.footer
	}

	payload, err := s.composer.Compose(job)
	if err != nil {
		c.sendError(fmt.Sprintf("invalid receipt: %v", err))
		return
	}

	jobID := s.queue.Enqueue(payload)
	c.sendResponse(map[string]any{
		"success": true,
		"job_id":  jobID,
		"total":   renderer.FormatAmount(job.Total()),
	})
}

// deliver queues msg without blocking; it reports false when the client is
// gone or its buffer is full
func (c *WSClient) deliver(msg WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) sendResponse(data map[string]any) {
	c.deliver(WSMessage{Event: EventResponse, Data: data})
}

func (c *WSClient) sendError(message string) {
	c.deliver(WSMessage{Event: EventError, Data: map[string]any{"error": message}})
}

func (s *Server) addClient(client *WSClient) {
	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()
}

func (s *Server) removeClient(client *WSClient) {
	s.clientsMu.Lock()
	delete(s.clients, client)
	s.clientsMu.Unlock()
	client.close()
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	clients := s.clients
	s.clients = make(map[*WSClient]bool)
	s.clientsMu.Unlock()

	for client := range clients {
		client.close()
	}
}

// Broadcast sends msg to every connected client, skipping clients whose
// buffer is full
func (s *Server) Broadcast(msg WSMessage) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		client.deliver(msg)
	}
}

func (s *Server) forwardEvents(events <-chan session.Event) {
	defer close(s.eventsDone)

	for ev := range events {
		s.Broadcast(WSMessage{Event: string(ev.Type), Data: ev})
	}
}
