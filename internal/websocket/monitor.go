package websocket

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
)

const (
	// How often the monitor checks for a stalled frame stream.
	monitorCheckInterval = 500 * time.Millisecond

	// Frames older than this mean the client stopped monitoring.
	monitorStaleAfter = time.Second
)

// MicMonitor watches the live mic-frame stream and rests the
// visualization when frames stop arriving, so the orb never freezes
// mid-pulse if the window closes or monitoring pauses without a clean
// toggle.
type MicMonitor struct {
	hub    *Hub
	logger *zap.Logger

	mu        sync.Mutex
	lastFrame time.Time
	active    bool

	stopChan chan struct{}
}

// NewMicMonitor creates the monitor; Start begins the background check.
func NewMicMonitor(hub *Hub, logger *zap.Logger) *MicMonitor {
	return &MicMonitor{
		hub:      hub,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Touch records that a frame just arrived.
func (m *MicMonitor) Touch() {
	m.mu.Lock()
	m.lastFrame = time.Now()
	m.active = true
	m.mu.Unlock()
}

// Start begins the background staleness check.
func (m *MicMonitor) Start() {
	go m.loop()
	m.logger.Info("Mic monitor started")
}

// Stop gracefully stops the monitor.
func (m *MicMonitor) Stop() {
	close(m.stopChan)
	m.logger.Info("Mic monitor stopped")
}

func (m *MicMonitor) loop() {
	ticker := time.NewTicker(monitorCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.checkStale()
		}
	}
}

// checkStale rests the levels once per stall, not every tick.
func (m *MicMonitor) checkStale() {
	m.mu.Lock()
	stale := m.active && time.Since(m.lastFrame) > monitorStaleAfter
	if stale {
		m.active = false
	}
	m.mu.Unlock()

	if stale {
		m.logger.Debug("Mic frames stalled, resting levels")
		m.hub.NotifyLevels(entities.ZeroLevels)
	}
}
