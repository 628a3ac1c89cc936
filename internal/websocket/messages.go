package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/orbvoice/orb/domain/entities"
)

// MessageType identifies a control or event message on the wire.
// Binary frames carry raw PCM16 and need no envelope: upstream they are
// capture chunks, downstream the synthesized waveform.
type MessageType string

// Client -> server
const (
	MessageTypeCaptureStart  MessageType = "capture_start"
	MessageTypeCaptureStop   MessageType = "capture_stop"
	MessageTypeCaptureError  MessageType = "capture_error"
	MessageTypeAutoConverse  MessageType = "auto_converse"
	MessageTypeAudioReactive MessageType = "audio_reactive"
	MessageTypeMicFrame      MessageType = "mic_frame"
	MessageTypePing          MessageType = "ping"
)

// Server -> client
const (
	MessageTypeState       MessageType = "state"
	MessageTypeTranscript  MessageType = "transcript"
	MessageTypeReply       MessageType = "reply"
	MessageTypeLevels      MessageType = "levels"
	MessageTypeSpeechStart MessageType = "speech_start"
	MessageTypeError       MessageType = "error"
	MessageTypePong        MessageType = "pong"
)

// ControlMessage is the single inbound envelope. Fields beyond Type are
// populated per message kind; Frame travels base64-encoded.
type ControlMessage struct {
	Type    MessageType `json:"type"`
	Enabled bool        `json:"enabled,omitempty"`
	Frame   []byte      `json:"frame,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ParseControlMessage decodes and minimally validates an inbound text
// frame.
func ParseControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid control message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("control message missing type")
	}
	return &msg, nil
}

type stateMessage struct {
	Type  MessageType        `json:"type"`
	State entities.TurnState `json:"state"`
}

type transcriptMessage struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type replyMessage struct {
	Type MessageType              `json:"type"`
	Text string                   `json:"text"`
	Tool *entities.ToolInvocation `json:"tool,omitempty"`
}

type levelsMessage struct {
	Type   MessageType `json:"type"`
	Bass   float64     `json:"bass"`
	Mid    float64     `json:"mid"`
	Treble float64     `json:"treble"`
	Volume float64     `json:"volume"`
}

type speechStartMessage struct {
	Type       MessageType `json:"type"`
	SampleRate int         `json:"sample_rate"`
	ByteLength int         `json:"byte_length"`
}

type errorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type pongMessage struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

func encodeState(state entities.TurnState) []byte {
	return mustJSON(stateMessage{Type: MessageTypeState, State: state})
}

func encodeTranscript(text string) []byte {
	return mustJSON(transcriptMessage{Type: MessageTypeTranscript, Text: text})
}

func encodeReply(text string, tool *entities.ToolInvocation) []byte {
	return mustJSON(replyMessage{Type: MessageTypeReply, Text: text, Tool: tool})
}

func encodeLevels(levels entities.AudioLevels) []byte {
	return mustJSON(levelsMessage{
		Type:   MessageTypeLevels,
		Bass:   levels.Bass,
		Mid:    levels.Mid,
		Treble: levels.Treble,
		Volume: levels.Volume,
	})
}

func encodeSpeechStart(sampleRate, byteLength int) []byte {
	return mustJSON(speechStartMessage{Type: MessageTypeSpeechStart, SampleRate: sampleRate, ByteLength: byteLength})
}

func encodeError(message string) []byte {
	return mustJSON(errorMessage{Type: MessageTypeError, Message: message})
}

func encodePong() []byte {
	return mustJSON(pongMessage{Type: MessageTypePong, Timestamp: time.Now().Unix()})
}

// mustJSON marshals outbound messages built entirely from marshalable
// fields; a failure here is a programming error.
func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
