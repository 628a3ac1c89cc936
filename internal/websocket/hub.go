package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
	"github.com/orbvoice/orb/domain/repositories"
	"github.com/orbvoice/orb/internal/audio"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB covers the largest capture chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The UI is a local desktop window, not a browser origin.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Engine is the slice of the turn service the transport needs. All
// capture edges from any connected window funnel into it.
type Engine interface {
	State() entities.TurnState
	StartCapture() error
	StopCapture() error
	PushAudio(chunk []byte) error
	SetAutoConverse(ctx context.Context, enabled bool) error
	DisableAutoLoop(ctx context.Context, reason string)
}

// WriteData is one outbound websocket frame.
type WriteData struct {
	// Type is websocket.TextMessage or websocket.BinaryMessage.
	Type    int
	Payload []byte
}

// Hub fans engine events out to every connected orb window and routes
// inbound control messages and audio into the engine. It is the
// engine's Notifier.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	engine Engine
	store  repositories.Store
	logger *zap.Logger

	// audioReactive gates live mic monitoring frames.
	reactiveMu    sync.RWMutex
	audioReactive bool

	monitor *MicMonitor
}

// NewHub creates a hub bound to the engine. The persisted audio_reactive
// preference carries across restarts.
func NewHub(engine Engine, store repositories.Store, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		engine:     engine,
		store:      store,
		logger:     logger,
	}

	if v, err := store.GetPreference(context.Background(), "audio_reactive"); err == nil {
		if enabled, ok := v.(bool); ok {
			h.audioReactive = enabled
		}
	} else {
		logger.Warn("Failed to restore audio_reactive", zap.Error(err))
	}

	h.monitor = NewMicMonitor(h, logger)
	return h
}

// Run starts the hub's main loop and the mic monitor.
func (h *Hub) Run() {
	h.monitor.Start()
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			// Late joiners missed earlier state broadcasts; catch them up.
			select {
			case client.send <- WriteData{Type: websocket.TextMessage, Payload: encodeState(h.engine.State())}:
			default:
			}
			h.logger.Info("Client registered", zap.String("clientID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))
		}
	}
}

// Broadcast queues a frame for every connected client. A client whose
// send buffer is full is dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(messageType int, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		select {
		case client.send <- WriteData{Type: messageType, Payload: payload}:
		default:
			h.logger.Warn("Dropping slow client", zap.String("clientID", id))
			delete(h.clients, id)
			close(client.send)
		}
	}
}

// AudioReactive reports whether live mic monitoring is on.
func (h *Hub) AudioReactive() bool {
	h.reactiveMu.RLock()
	defer h.reactiveMu.RUnlock()
	return h.audioReactive
}

// SetAudioReactive flips mic monitoring and persists the preference.
// Turning it off rests the visualization immediately.
func (h *Hub) SetAudioReactive(ctx context.Context, enabled bool) {
	h.reactiveMu.Lock()
	h.audioReactive = enabled
	h.reactiveMu.Unlock()

	pref := &entities.Preference{Key: "audio_reactive", Value: enabled, Category: "visualization"}
	if err := h.store.SetPreference(ctx, pref); err != nil {
		h.logger.Warn("Failed to persist audio_reactive", zap.Error(err))
	}

	if !enabled {
		h.NotifyLevels(entities.ZeroLevels)
	}
	h.logger.Info("Audio-reactive toggled", zap.Bool("enabled", enabled))
}

// NotifyState implements usecase.Notifier.
func (h *Hub) NotifyState(state entities.TurnState) {
	h.Broadcast(websocket.TextMessage, encodeState(state))
}

func (h *Hub) NotifyTranscript(text string) {
	h.Broadcast(websocket.TextMessage, encodeTranscript(text))
}

func (h *Hub) NotifyReply(text string, invocation *entities.ToolInvocation) {
	h.Broadcast(websocket.TextMessage, encodeReply(text, invocation))
}

// NotifyAudio announces the waveform then ships it as one binary frame.
func (h *Hub) NotifyAudio(pcm []byte, sampleRate int) {
	h.Broadcast(websocket.TextMessage, encodeSpeechStart(sampleRate, len(pcm)))
	h.Broadcast(websocket.BinaryMessage, pcm)
}

func (h *Hub) NotifyLevels(levels entities.AudioLevels) {
	h.Broadcast(websocket.TextMessage, encodeLevels(levels))
}

func (h *Hub) NotifyError(message string) {
	h.Broadcast(websocket.TextMessage, encodeError(message))
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan WriteData
	id     string
	logger *zap.Logger
}

// HandleWebSocket upgrades the request and starts the client pumps.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan WriteData, 256),
		id:     uuid.New().String(),
		logger: logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection into the
// engine.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processControl(message)
		case websocket.BinaryMessage:
			c.processAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processControl dispatches one inbound text frame.
func (c *Client) processControl(message []byte) {
	msg, err := ParseControlMessage(message)
	if err != nil {
		c.logger.Error("Failed to parse control message", zap.Error(err))
		c.reply(encodeError("malformed control message"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch msg.Type {
	case MessageTypeCaptureStart:
		if err := c.hub.engine.StartCapture(); err != nil {
			// A start racing an in-flight turn simply loses.
			c.logger.Debug("Capture start refused", zap.Error(err))
		}

	case MessageTypeCaptureStop:
		if err := c.hub.engine.StopCapture(); err != nil {
			c.logger.Debug("Capture stop ignored", zap.Error(err))
		}

	case MessageTypeAutoConverse:
		if err := c.hub.engine.SetAutoConverse(ctx, msg.Enabled); err != nil {
			c.logger.Error("Failed to toggle auto-converse", zap.Error(err))
			c.reply(encodeError("failed to update auto-converse"))
		}

	case MessageTypeAudioReactive:
		c.hub.SetAudioReactive(ctx, msg.Enabled)

	case MessageTypeMicFrame:
		c.handleMicFrame(msg.Frame)

	case MessageTypeCaptureError:
		reason := msg.Message
		if reason == "" {
			reason = "microphone capture failed"
		}
		c.hub.engine.DisableAutoLoop(ctx, reason)

	case MessageTypePing:
		c.reply(encodePong())

	default:
		c.logger.Warn("Unknown control message", zap.String("type", string(msg.Type)))
	}
}

// handleMicFrame turns a monitoring spectrum frame into broadcast
// levels while the visualization is audio-reactive.
func (c *Client) handleMicFrame(frame []byte) {
	if !c.hub.AudioReactive() {
		return
	}
	if len(frame) == 0 {
		return
	}
	c.hub.monitor.Touch()
	c.hub.NotifyLevels(audio.DeriveLevels(frame))
}

// processAudioChunk forwards captured PCM into the engine. Chunks that
// arrive outside the capture window are expected around turn edges.
func (c *Client) processAudioChunk(data []byte) {
	if err := c.hub.engine.PushAudio(data); err != nil {
		c.logger.Debug("Dropped audio chunk", zap.Int("size", len(data)), zap.Error(err))
	}
}

func (c *Client) reply(payload []byte) {
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Dropping reply to slow client", zap.String("clientID", c.id))
	}
}
