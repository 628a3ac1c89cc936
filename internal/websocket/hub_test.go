package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
)

type fakeEngine struct {
	mu            sync.Mutex
	state         entities.TurnState
	starts        int
	stops         int
	chunks        [][]byte
	autoConverse  *bool
	disabled      []string
	startRefusal  error
	startNotified chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		state:         entities.TurnStateIdle,
		startNotified: make(chan struct{}, 16),
	}
}

func (f *fakeEngine) State() entities.TurnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEngine) StartCapture() error {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	f.startNotified <- struct{}{}
	return f.startRefusal
}

func (f *fakeEngine) StopCapture() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeEngine) PushAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunk)
	return nil
}

func (f *fakeEngine) SetAutoConverse(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoConverse = &enabled
	return nil
}

func (f *fakeEngine) DisableAutoLoop(_ context.Context, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled = append(f.disabled, reason)
}

type stubStore struct {
	mu    sync.Mutex
	prefs map[string]interface{}
}

func newStubStore() *stubStore { return &stubStore{prefs: map[string]interface{}{}} }

func (s *stubStore) SaveMessage(_ context.Context, _ *entities.ConversationMessage) error { return nil }
func (s *stubStore) GetConversations(_ context.Context, _ string, _ int) ([]entities.ConversationMessage, error) {
	return nil, nil
}
func (s *stubStore) GetRecentContext(_ context.Context, _ string, _ int) ([]entities.ConversationMessage, error) {
	return nil, nil
}
func (s *stubStore) SearchConversations(_ context.Context, _ string, _ string, _ int) ([]entities.ConversationMessage, error) {
	return nil, nil
}
func (s *stubStore) CreateSession(_ context.Context, _ string) (*entities.Session, error) {
	return nil, nil
}
func (s *stubStore) GetSessions(_ context.Context, _ int) ([]entities.Session, error) { return nil, nil }
func (s *stubStore) TouchSession(_ context.Context, _ string) error                   { return nil }
func (s *stubStore) GetPersonality(_ context.Context) ([]entities.PersonalityFact, error) {
	return nil, nil
}
func (s *stubStore) UpdatePersonality(_ context.Context, _ *entities.PersonalityFact) error {
	return nil
}
func (s *stubStore) DeletePersonality(_ context.Context, _ string) error { return nil }
func (s *stubStore) GetPreference(_ context.Context, key string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs[key], nil
}
func (s *stubStore) SetPreference(_ context.Context, pref *entities.Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[pref.Key] = pref.Value
	return nil
}

func setupTestHub() (*Hub, *fakeEngine, *stubStore) {
	engine := newFakeEngine()
	store := newStubStore()
	hub := NewHub(engine, store, zap.NewNop())
	return hub, engine, store
}

func testClient(hub *Hub, id string) *Client {
	return &Client{
		hub:    hub,
		id:     id,
		send:   make(chan WriteData, 256),
		logger: zap.NewNop(),
	}
}

func TestBroadcastFansOutToAllClients(t *testing.T) {
	hub, _, _ := setupTestHub()

	c1 := testClient(hub, "client-1")
	c2 := testClient(hub, "client-2")
	hub.clients[c1.id] = c1
	hub.clients[c2.id] = c2

	hub.NotifyState(entities.TurnStateCapturing)

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			var got stateMessage
			if err := json.Unmarshal(msg.Payload, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.State != entities.TurnStateCapturing {
				t.Errorf("state = %v, want capturing", got.State)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s received nothing", c.id)
		}
	}
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	hub, _, _ := setupTestHub()

	slow := &Client{hub: hub, id: "slow", send: make(chan WriteData), logger: zap.NewNop()}
	hub.clients[slow.id] = slow

	hub.NotifyState(entities.TurnStateIdle)

	hub.mu.RLock()
	_, exists := hub.clients["slow"]
	hub.mu.RUnlock()
	if exists {
		t.Error("slow client still registered after full buffer")
	}
}

func TestNotifyAudioAnnouncesThenShipsBinary(t *testing.T) {
	hub, _, _ := setupTestHub()
	c := testClient(hub, "client-1")
	hub.clients[c.id] = c

	pcm := []byte{1, 2, 3, 4, 5, 6}
	hub.NotifyAudio(pcm, 16000)

	first := <-c.send
	if first.Type != websocket.TextMessage {
		t.Fatalf("first frame type = %d, want text", first.Type)
	}
	var announce speechStartMessage
	if err := json.Unmarshal(first.Payload, &announce); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if announce.SampleRate != 16000 || announce.ByteLength != len(pcm) {
		t.Errorf("announce = %+v", announce)
	}

	second := <-c.send
	if second.Type != websocket.BinaryMessage || len(second.Payload) != len(pcm) {
		t.Errorf("binary frame = type %d, %d bytes", second.Type, len(second.Payload))
	}
}

func TestControlMessagesReachEngine(t *testing.T) {
	hub, engine, _ := setupTestHub()
	c := testClient(hub, "client-1")

	c.processControl([]byte(`{"type":"capture_start"}`))
	c.processControl([]byte(`{"type":"capture_stop"}`))
	c.processControl([]byte(`{"type":"auto_converse","enabled":true}`))
	c.processControl([]byte(`{"type":"capture_error","message":"mic denied"}`))

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.starts != 1 {
		t.Errorf("starts = %d, want 1", engine.starts)
	}
	if engine.stops != 1 {
		t.Errorf("stops = %d, want 1", engine.stops)
	}
	if engine.autoConverse == nil || !*engine.autoConverse {
		t.Error("auto-converse toggle did not reach the engine")
	}
	if len(engine.disabled) != 1 || engine.disabled[0] != "mic denied" {
		t.Errorf("disabled = %v", engine.disabled)
	}
}

func TestBinaryFramesFeedCapture(t *testing.T) {
	hub, engine, _ := setupTestHub()
	c := testClient(hub, "client-1")

	chunk := []byte{0x10, 0x20, 0x30, 0x40}
	c.processAudioChunk(chunk)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.chunks) != 1 || len(engine.chunks[0]) != len(chunk) {
		t.Errorf("chunks = %v", engine.chunks)
	}
}

func TestMicFramesGatedByAudioReactive(t *testing.T) {
	hub, _, store := setupTestHub()
	c := testClient(hub, "client-1")
	listener := testClient(hub, "listener")
	hub.clients[listener.id] = listener

	frame := make([]byte, 128)
	for i := range frame {
		frame[i] = 128
	}

	// Off by default: frames are ignored.
	c.handleMicFrame(frame)
	select {
	case msg := <-listener.send:
		t.Fatalf("levels broadcast while audio_reactive off: %s", msg.Payload)
	default:
	}

	hub.SetAudioReactive(context.Background(), true)
	c.handleMicFrame(frame)

	select {
	case msg := <-listener.send:
		var levels levelsMessage
		if err := json.Unmarshal(msg.Payload, &levels); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if levels.Volume == 0 {
			t.Error("expected non-zero volume from a hot frame")
		}
	case <-time.After(time.Second):
		t.Fatal("no levels broadcast while audio_reactive on")
	}

	if got := store.prefs["audio_reactive"]; got != true {
		t.Errorf("persisted audio_reactive = %v, want true", got)
	}
}

func TestSetAudioReactiveOffRestsLevels(t *testing.T) {
	hub, _, _ := setupTestHub()
	listener := testClient(hub, "listener")
	hub.clients[listener.id] = listener

	hub.SetAudioReactive(context.Background(), false)

	select {
	case msg := <-listener.send:
		var levels levelsMessage
		if err := json.Unmarshal(msg.Payload, &levels); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if levels.Bass != 0 || levels.Mid != 0 || levels.Treble != 0 || levels.Volume != 0 {
			t.Errorf("levels = %+v, want zero", levels)
		}
	case <-time.After(time.Second):
		t.Fatal("no zero-levels broadcast on disable")
	}
}

func TestHubRestoresAudioReactivePreference(t *testing.T) {
	engine := newFakeEngine()
	store := newStubStore()
	store.prefs["audio_reactive"] = true

	hub := NewHub(engine, store, zap.NewNop())

	if !hub.AudioReactive() {
		t.Error("audio_reactive preference not restored at startup")
	}
}

func TestRegisterCatchesUpClientState(t *testing.T) {
	hub, engine, _ := setupTestHub()
	engine.mu.Lock()
	engine.state = entities.TurnStateCapturing
	engine.mu.Unlock()

	go hub.Run()

	c := testClient(hub, "late-joiner")
	hub.register <- c

	select {
	case msg := <-c.send:
		var got stateMessage
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.State != entities.TurnStateCapturing {
			t.Errorf("state on register = %v, want capturing", got.State)
		}
	case <-time.After(time.Second):
		t.Fatal("newly registered client received no state frame")
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	hub, engine, _ := setupTestHub()
	go hub.Run()

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocket(hub, c, zap.NewNop())
	})
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration pushes the current state down first.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read state frame: %v", err)
	}
	var state stateMessage
	if err := json.Unmarshal(payload, &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if state.Type != MessageTypeState || state.State != entities.TurnStateIdle {
		t.Errorf("state frame on connect = %+v, want idle", state)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"capture_start"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-engine.startNotified:
	case <-time.After(2 * time.Second):
		t.Fatal("capture_start never reached the engine")
	}

	// Engine events flow back down the same socket.
	hub.NotifyTranscript("hello there")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var transcript transcriptMessage
	if err := json.Unmarshal(payload, &transcript); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if transcript.Text != "hello there" {
		t.Errorf("transcript = %q", transcript.Text)
	}
}
