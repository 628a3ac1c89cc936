package entities

// TurnState is the phase of the single in-flight conversation turn.
// Exactly one instance exists per engine; transitions are serialized by
// the turn service.
type TurnState string

const (
	TurnStateIdle         TurnState = "idle"
	TurnStateCapturing    TurnState = "capturing"
	TurnStateTranscribing TurnState = "transcribing"
	TurnStateComposing    TurnState = "composing"
	TurnStateSynthesizing TurnState = "synthesizing"
	TurnStatePlaying      TurnState = "playing"
)

// Processing reports whether the state is past capture and before Idle,
// i.e. a network/playback pipeline is running.
func (s TurnState) Processing() bool {
	switch s {
	case TurnStateTranscribing, TurnStateComposing, TurnStateSynthesizing, TurnStatePlaying:
		return true
	}
	return false
}

// ToolInvocation records a single command execution requested by the
// assistant inside a reply. It lives only for the duration of one turn.
type ToolInvocation struct {
	Command string `json:"command"`
	Output  string `json:"output"`
	Err     string `json:"error,omitempty"`
	Success bool   `json:"success"`
}
