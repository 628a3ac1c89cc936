package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
	"github.com/orbvoice/orb/domain/repositories"
	"github.com/orbvoice/orb/internal/audio"
	"github.com/orbvoice/orb/internal/memory"
	"github.com/orbvoice/orb/internal/tools"
)

// Engine refusals. Callers treat these as ordinary contention, not
// failures: a start request racing an in-flight turn simply loses.
var (
	ErrNotIdle      = errors.New("turn already in progress")
	ErrNotCapturing = errors.New("not capturing")
)

// Notifier is the outbound surface of the engine. The WebSocket hub
// implements it; tests substitute a recorder.
type Notifier interface {
	NotifyState(state entities.TurnState)
	NotifyTranscript(text string)
	NotifyReply(text string, invocation *entities.ToolInvocation)
	NotifyAudio(pcm []byte, sampleRate int)
	NotifyLevels(levels entities.AudioLevels)
	NotifyError(message string)
}

// TurnConfig is the per-engine tuning read from internal/config.
type TurnConfig struct {
	SessionID     string
	SampleRate    int
	Language      string
	VoiceID       string
	HistoryWindow int
	FactLimit     int
}

// Dependencies collects the engine's collaborators.
type Dependencies struct {
	Gate         *audio.Gate
	SpeechToText repositories.SpeechToText
	LLM          repositories.LargeLanguageModel
	TextToSpeech repositories.TextToSpeech
	Store        repositories.Store
	Interceptor  *tools.Interceptor
	Ranker       *memory.Ranker
	Cache        *memory.FactCache
	Extractor    *memory.Extractor
	Player       audio.Player
	Notifier     Notifier
}

// TurnService owns the single conversation turn state machine. All
// transitions go through it; there is exactly one instance per server
// and at most one turn in flight.
type TurnService struct {
	cfg    TurnConfig
	deps   Dependencies
	logger *zap.Logger

	mu           sync.Mutex
	state        entities.TurnState
	pcm          []byte
	capturedAt   time.Time
	autoConverse bool

	scheduler *AutoLoopScheduler
	wg        sync.WaitGroup
}

// NewTurnService creates the engine in the Idle state.
func NewTurnService(cfg TurnConfig, deps Dependencies, logger *zap.Logger) *TurnService {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &TurnService{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		state:  entities.TurnStateIdle,
	}
}

// AttachScheduler wires the auto-loop scheduler. Done after construction
// because the scheduler's callbacks point back at the service.
func (s *TurnService) AttachScheduler(scheduler *AutoLoopScheduler) {
	s.scheduler = scheduler
}

// SetNotifier wires the outbound surface. Done after construction
// because the hub that implements it needs the engine first.
func (s *TurnService) SetNotifier(n Notifier) {
	s.deps.Notifier = n
}

// State returns the current turn phase.
func (s *TurnService) State() entities.TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AutoConverse reports whether the hands-free loop is enabled.
func (s *TurnService) AutoConverse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoConverse
}

// SetAutoConverse flips the hands-free loop and persists the choice.
// Enabling while idle arms the scheduler immediately.
func (s *TurnService) SetAutoConverse(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	s.autoConverse = enabled
	state := s.state
	s.mu.Unlock()

	pref := &entities.Preference{Key: "auto_converse", Value: enabled, Category: "behavior"}
	if err := s.deps.Store.SetPreference(ctx, pref); err != nil {
		return fmt.Errorf("failed to persist auto_converse: %w", err)
	}

	s.logger.Info("Auto-converse toggled", zap.Bool("enabled", enabled))
	if enabled && s.scheduler != nil {
		s.scheduler.MaybeResume(true, state == entities.TurnStateCapturing, state.Processing())
	}
	return nil
}

// DisableAutoLoop turns the hands-free loop off after the client reports
// it can no longer capture (microphone permission lost). Unlike a failed
// turn, this does not re-arm.
func (s *TurnService) DisableAutoLoop(ctx context.Context, reason string) {
	s.mu.Lock()
	s.autoConverse = false
	s.mu.Unlock()

	pref := &entities.Preference{Key: "auto_converse", Value: false, Category: "behavior"}
	if err := s.deps.Store.SetPreference(ctx, pref); err != nil {
		s.logger.Warn("Failed to persist auto_converse=false", zap.Error(err))
	}

	s.logger.Warn("Auto-converse disabled", zap.String("reason", reason))
	s.deps.Notifier.NotifyError(reason)
}

// StartCapture begins a new turn. It is the single entry point shared by
// the push-to-talk edge and the auto-loop scheduler, and is refused
// unless the machine is Idle.
func (s *TurnService) StartCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != entities.TurnStateIdle {
		return ErrNotIdle
	}

	s.state = entities.TurnStateCapturing
	s.pcm = s.pcm[:0]
	s.capturedAt = time.Now()

	s.logger.Debug("Capture started")
	s.deps.Notifier.NotifyState(entities.TurnStateCapturing)
	return nil
}

// PushAudio appends a PCM16 chunk to the capture buffer. Chunks arriving
// outside the Capturing phase are dropped.
func (s *TurnService) PushAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != entities.TurnStateCapturing {
		return ErrNotCapturing
	}
	s.pcm = append(s.pcm, chunk...)
	return nil
}

// StopCapture ends the capture phase and hands the buffer to the
// pipeline. It returns as soon as the gate decision is made; the rest of
// the turn runs in the background. A gated-out buffer returns the
// machine to Idle with no user-visible output.
func (s *TurnService) StopCapture() error {
	s.mu.Lock()
	if s.state != entities.TurnStateCapturing {
		s.mu.Unlock()
		return ErrNotCapturing
	}

	buf := &entities.AudioBuffer{
		PCM:        append([]byte(nil), s.pcm...),
		SampleRate: s.cfg.SampleRate,
		CapturedAt: s.capturedAt,
	}
	s.pcm = s.pcm[:0]

	metrics, ok := s.deps.Gate.Evaluate(buf)
	if !ok {
		s.state = entities.TurnStateIdle
		s.mu.Unlock()

		s.logger.Debug("Capture gated out",
			zap.Float64("duration", metrics.DurationSeconds),
			zap.Float64("rms", metrics.RMS))
		s.deps.Notifier.NotifyState(entities.TurnStateIdle)
		s.maybeResume()
		return nil
	}

	s.state = entities.TurnStateTranscribing
	s.mu.Unlock()

	s.deps.Notifier.NotifyState(entities.TurnStateTranscribing)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTurn(context.Background(), buf, metrics)
	}()
	return nil
}

// runTurn drives one accepted buffer through transcription, prompt
// assembly, the model call, tool interception, synthesis, playback and
// persistence. Every exit path lands in finishTurn.
func (s *TurnService) runTurn(ctx context.Context, buf *entities.AudioBuffer, metrics entities.SignalMetrics) {
	defer s.finishTurn()

	transcript, err := s.deps.SpeechToText.TranscribeAudio(ctx, buf.PCM, repositories.AudioConfig{
		SampleRate: buf.SampleRate,
		Encoding:   "LINEAR16",
		Language:   s.cfg.Language,
	})
	if err != nil {
		s.logger.Error("Transcription failed", zap.Error(err))
		s.deps.Notifier.NotifyError("I couldn't hear that, please try again.")
		return
	}
	if transcript == "" {
		s.logger.Debug("No speech recognized")
		return
	}

	s.deps.Notifier.NotifyTranscript(transcript)
	s.setState(entities.TurnStateComposing)

	reply, err := s.compose(ctx, transcript)
	if err != nil {
		s.logger.Error("Reply generation failed", zap.Error(err))
		s.deps.Notifier.NotifyError("I lost my train of thought, please try again.")
		return
	}

	s.setState(entities.TurnStateSynthesizing)

	// Intercept before synthesis so the voice never reads raw JSON.
	spoken, invocation := s.deps.Interceptor.Intercept(ctx, reply)
	s.deps.Notifier.NotifyReply(reply, invocation)

	// A pure tool-call reply strips to whitespace; the turn skips
	// straight to persistence.
	if strings.TrimSpace(spoken) != "" {
		waveform, err := s.deps.TextToSpeech.Synthesize(ctx, spoken, s.cfg.VoiceID)
		if err != nil {
			s.logger.Error("Speech synthesis failed", zap.Error(err))
			s.deps.Notifier.NotifyError("I couldn't find my voice for that one.")
			return
		}

		s.setState(entities.TurnStatePlaying)
		s.deps.Notifier.NotifyAudio(waveform, s.cfg.SampleRate)

		_, err = s.deps.Player.Play(ctx, waveform, s.cfg.SampleRate, s.deps.Notifier.NotifyLevels)
		// Levels always return to rest, whether playback finished or was cut.
		s.deps.Notifier.NotifyLevels(entities.ZeroLevels)
		if err != nil {
			s.logger.Debug("Playback interrupted", zap.Error(err))
		}
	}

	s.persistTurn(ctx, transcript, metrics, reply, invocation)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deps.Extractor.ExtractTurn(context.Background(), transcript, reply)
	}()
}

// persistTurn writes the turn's messages once playback has finished: the
// user utterance, the tool output when a command ran, then the assistant
// reply. A failed synthesis or an abandoned turn leaves no trace in the
// conversation log.
func (s *TurnService) persistTurn(ctx context.Context, transcript string, metrics entities.SignalMetrics, reply string, invocation *entities.ToolInvocation) {
	userMsg := &entities.ConversationMessage{
		SessionID: s.cfg.SessionID,
		Role:      entities.MessageRoleUser,
		Content:   transcript,
		Metadata: map[string]interface{}{
			"duration_seconds": metrics.DurationSeconds,
			"rms":              metrics.RMS,
		},
	}
	if err := s.deps.Store.SaveMessage(ctx, userMsg); err != nil {
		s.logger.Error("Failed to persist user message", zap.Error(err))
	}

	if invocation != nil {
		toolMsg := &entities.ConversationMessage{
			SessionID: s.cfg.SessionID,
			Role:      entities.MessageRoleSystem,
			Content:   tools.SystemMessageContent(invocation),
		}
		if err := s.deps.Store.SaveMessage(ctx, toolMsg); err != nil {
			s.logger.Error("Failed to persist tool output", zap.Error(err))
		}
	}

	assistantMsg := &entities.ConversationMessage{
		SessionID: s.cfg.SessionID,
		Role:      entities.MessageRoleAssistant,
		Content:   reply,
	}
	if err := s.deps.Store.SaveMessage(ctx, assistantMsg); err != nil {
		s.logger.Error("Failed to persist assistant message", zap.Error(err))
	}
	if err := s.deps.Store.TouchSession(ctx, s.cfg.SessionID); err != nil {
		s.logger.Warn("Failed to touch session", zap.Error(err))
	}
}

// compose assembles the prompt (persona, ranked facts, recent history,
// the current transcript) and calls the model.
func (s *TurnService) compose(ctx context.Context, transcript string) (string, error) {
	facts := s.deps.Ranker.Rank(s.deps.Cache.Facts(), transcript, s.cfg.FactLimit)

	history, err := s.deps.Store.GetRecentContext(ctx, s.cfg.SessionID, s.cfg.HistoryWindow)
	if err != nil {
		s.logger.Warn("Failed to load recent context", zap.Error(err))
	}

	messages := make([]repositories.ChatMessage, 0, len(history)+2)
	messages = append(messages, repositories.ChatMessage{
		Role:    repositories.SystemRole,
		Content: BuildSystemPrompt(facts),
	})
	for _, msg := range history {
		messages = append(messages, repositories.ChatMessage{
			Role:    chatRole(msg.Role),
			Content: msg.Content,
		})
	}
	// The current utterance is not persisted until the turn completes,
	// so history never contains it yet.
	messages = append(messages, repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: transcript,
	})

	return s.deps.LLM.Chat(ctx, messages)
}

func (s *TurnService) setState(state entities.TurnState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.deps.Notifier.NotifyState(state)
}

func (s *TurnService) finishTurn() {
	s.setState(entities.TurnStateIdle)
	s.maybeResume()
}

func (s *TurnService) maybeResume() {
	if s.scheduler == nil {
		return
	}
	s.mu.Lock()
	enabled := s.autoConverse
	state := s.state
	s.mu.Unlock()
	s.scheduler.MaybeResume(enabled, state == entities.TurnStateCapturing, state.Processing())
}

// LoopCheck re-validates the resume conditions at debounce expiry; the
// user may have toggled the loop off or started talking in the gap.
func (s *TurnService) LoopCheck() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoConverse && s.state == entities.TurnStateIdle
}

// LoopResume is the scheduler's entry back into the machine. Losing the
// race to a manual start is fine.
func (s *TurnService) LoopResume() {
	if err := s.StartCapture(); err != nil {
		s.logger.Debug("Auto-loop resume skipped", zap.Error(err))
	}
}

func chatRole(role entities.MessageRole) repositories.Role {
	switch role {
	case entities.MessageRoleAssistant:
		return repositories.AssistantRole
	case entities.MessageRoleSystem:
		return repositories.SystemRole
	default:
		return repositories.UserRole
	}
}
