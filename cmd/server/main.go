package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/orbvoice/orb/adapters/llm"
	"github.com/orbvoice/orb/adapters/sqlite"
	"github.com/orbvoice/orb/adapters/stt"
	"github.com/orbvoice/orb/adapters/sysexec"
	"github.com/orbvoice/orb/adapters/tts"
	"github.com/orbvoice/orb/domain/repositories"
	"github.com/orbvoice/orb/internal/api"
	"github.com/orbvoice/orb/internal/audio"
	"github.com/orbvoice/orb/internal/auth"
	"github.com/orbvoice/orb/internal/config"
	"github.com/orbvoice/orb/internal/memory"
	"github.com/orbvoice/orb/internal/tools"
	"github.com/orbvoice/orb/internal/websocket"
	"github.com/orbvoice/orb/usecase"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	store, err := sqlite.New(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer store.Close()

	session, err := store.CreateSession(ctx, "Conversation "+time.Now().Format("2006-01-02 15:04"))
	if err != nil {
		logger.Fatal("Failed to create session", zap.Error(err))
	}

	// Real adapters when credentials are present, mocks otherwise so the
	// engine can be exercised end to end without any keys.
	var languageModel repositories.LargeLanguageModel
	if cfg.GeminiAPIKey != "" {
		languageModel, err = llm.NewGeminiLLM(ctx, llm.GeminiConfig{APIKey: cfg.GeminiAPIKey}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Gemini", zap.Error(err))
		}
	} else {
		logger.Warn("GEMINI_API_KEY not set, using mock language model")
		languageModel = llm.NewMockLLM()
	}

	var speechToText repositories.SpeechToText
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		speechToText = stt.NewGoogleSpeechToText(logger)
	} else {
		logger.Warn("GOOGLE_APPLICATION_CREDENTIALS not set, using mock transcriber")
		speechToText = stt.NewMockSpeechToText(logger)
	}

	var textToSpeech repositories.TextToSpeech
	if cfg.ElevenLabsAPIKey != "" {
		textToSpeech, err = tts.NewElevenLabsTTS(tts.ElevenLabsConfig{APIKey: cfg.ElevenLabsAPIKey}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize text-to-speech", zap.Error(err))
		}
	} else {
		logger.Warn("ELEVENLABS_API_KEY not set, using mock synthesizer")
		textToSpeech = tts.NewMockTTS()
	}

	cache := memory.NewFactCache(store, logger)
	if err := cache.Refresh(ctx); err != nil {
		logger.Warn("Failed to warm fact cache", zap.Error(err))
	}

	engine := usecase.NewTurnService(
		usecase.TurnConfig{
			SessionID:     session.ID,
			SampleRate:    16000,
			Language:      cfg.Language,
			VoiceID:       cfg.VoiceID,
			HistoryWindow: cfg.HistoryWindow,
			FactLimit:     cfg.FactLimit,
		},
		usecase.Dependencies{
			Gate:         audio.NewGate(cfg.MinClipDuration, cfg.MinClipRMS),
			SpeechToText: speechToText,
			LLM:          languageModel,
			TextToSpeech: textToSpeech,
			Store:        store,
			Interceptor:  tools.NewInterceptor(sysexec.NewLocalExecutor(logger), logger),
			Ranker:       memory.NewRanker(cfg.PromptHitWeight),
			Cache:        cache,
			Extractor:    memory.NewExtractor(languageModel, store, cache, logger),
			Player:       audio.NewPacedPlayer(logger),
			Notifier:     nil, // set below once the hub exists
		},
		logger,
	)

	hub := websocket.NewHub(engine, store, logger)
	engine.SetNotifier(hub)
	go hub.Run()

	scheduler := usecase.NewAutoLoopScheduler(cfg.AutoLoopDebounce, engine.LoopCheck, engine.LoopResume, logger)
	engine.AttachScheduler(scheduler)

	// Re-apply the persisted hands-free preference.
	if v, err := store.GetPreference(ctx, "auto_converse"); err == nil {
		if enabled, ok := v.(bool); ok && enabled {
			if err := engine.SetAutoConverse(ctx, true); err != nil {
				logger.Warn("Failed to restore auto_converse", zap.Error(err))
			}
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler := api.NewHandler(
		store,
		engine,
		memory.NewRanker(cfg.HighlightWeight),
		cache,
		auth.NewTokenService(cfg.JWTSecret),
		cfg.JWTSecret != "",
		logger,
	)
	api.InitRoutes(e, handler, hub)

	go func() {
		if err := e.Start(cfg.HTTPAddress); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Orb server started",
		zap.String("address", cfg.HTTPAddress),
		zap.String("session", session.ID))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
