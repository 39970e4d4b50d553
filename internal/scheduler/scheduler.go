package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/genricoloni/ledmatrix/internal/animate"
	"github.com/genricoloni/ledmatrix/internal/catalog"
	"github.com/genricoloni/ledmatrix/internal/codec"
	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
	"github.com/genricoloni/ledmatrix/internal/metrics"
	"go.uber.org/zap"
)

const (
	// componentName suffixes the stats topic and prefixes the connection notice
	componentName   = "Scheduler"
	connectedNotice = componentName + " (re-)connected"
	alertProgramID  = "alert"
)

// Scheduler feeds the display. It listens to transport events, registers
// decoded programs in the catalog and publishes one frame per tick.
type Scheduler struct {
	logger    *zap.Logger
	cfg       *config.AppConfig
	catalog   *catalog.Catalog
	transport domain.Transport
	codec     codec.Codec
	expander  *animate.Expander
	metrics   *metrics.Metrics
	clock     domain.Clock

	// Owned by the run loop
	ticker       *time.Ticker
	holdUntil    time.Time
	currentAlert string

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler
func New(
	logger *zap.Logger,
	cfg *config.AppConfig,
	cat *catalog.Catalog,
	tr domain.Transport,
	c codec.Codec,
	exp *animate.Expander,
	m *metrics.Metrics,
	clock domain.Clock,
) *Scheduler {
	cat.OnRetire(func(string) { m.ProgramRetired() })
	return &Scheduler{
		logger:    logger,
		cfg:       cfg,
		catalog:   cat,
		transport: tr,
		codec:     c,
		expander:  exp,
		metrics:   m,
		clock:     clock,
	}
}

// Start launches the event loop and connects the transport.
// It returns immediately (non-blocking).
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Scheduler starting...",
		zap.Duration("frameInterval", s.cfg.FrameInterval()),
		zap.String("rotation", s.cfg.Scheduler.Rotation))

	// The loop outlives the start context
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.runLoop(loopCtx)

	if err := s.transport.Start(ctx); err != nil {
		cancel()
		<-s.done
		return err
	}
	return nil
}

// Stop ends the event loop and disconnects the transport
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Scheduler stopping...")

	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
			s.logger.Warn("Scheduler loop did not stop in time")
			return errors.Join(ctx.Err(), s.transport.Stop(ctx))
		}
	}
	return s.transport.Stop(ctx)
}

// runLoop is the single timeline: transport events and ticks never overlap
func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.done)
	defer s.stopTicker()

	events := s.transport.Events()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler loop stopped")
			return

		case ev, ok := <-events:
			if !ok {
				s.logger.Info("Transport events channel closed")
				return
			}
			s.handleEvent(ev)

		case <-s.tickC():
			s.Tick()
		}
	}
}

func (s *Scheduler) handleEvent(ev domain.TransportEvent) {
	switch ev.Kind {
	case domain.EventConnected:
		s.onConnected()
	case domain.EventDisconnected:
		// Paused until the next EventConnected
		s.logger.Warn("Transport disconnected, pausing frames", zap.Error(ev.Err))
		s.stopTicker()
	case domain.EventMessage:
		s.HandleMessage(ev.Message)
	}
}

func (s *Scheduler) onConnected() {
	qos := s.cfg.MQTT.QoS
	for _, topic := range []string{
		s.cfg.ProgramsFilter(),
		s.cfg.Topics.Sequences,
		s.cfg.Topics.Alerts,
	} {
		if err := s.transport.Subscribe(topic, qos); err != nil {
			s.logger.Error("Failed to subscribe", zap.String("topic", topic), zap.Error(err))
		}
	}

	s.startTicker()

	if s.cfg.Topics.Stats != "" {
		if err := s.transport.Publish(s.cfg.Topics.Stats+componentName, qos, false, []byte(connectedNotice)); err != nil {
			s.logger.Warn("Failed to publish connection notice", zap.Error(err))
		}
	}
	s.logger.Info("Scheduler connected", zap.Int("programs", s.catalog.Len()))
}

// HandleMessage decodes a program payload and registers it.
// Malformed payloads are logged and dropped.
func (s *Scheduler) HandleMessage(msg domain.Message) {
	source, defaultID, ok := s.route(msg.Topic)
	if !ok {
		s.logger.Debug("Ignoring message on unexpected topic", zap.String("topic", msg.Topic))
		return
	}

	program, err := s.codec.Decode(msg.Payload)
	if err != nil {
		s.logger.Warn("Dropping undecodable program",
			zap.String("topic", msg.Topic),
			zap.Int("bytes", len(msg.Payload)),
			zap.Error(err))
		s.metrics.DecodeFailed(decodeFailureReason(err))
		return
	}

	id := defaultID
	if program.ID != "" {
		id = program.ID
	}
	if source == metrics.SourceAlert {
		program.Priority = domain.PriorityAlert
	}

	if s.cfg.Scheduler.AnimateStills && program.Len() == 1 {
		animated, err := s.expander.Expand(program)
		if err != nil {
			s.logger.Warn("Failed to animate still, keeping it as is",
				zap.String("program", id),
				zap.Error(err))
		} else {
			program = animated
		}
	}

	s.catalog.Add(id, program)
	s.metrics.ProgramRegistered(source)
	s.metrics.SetCatalogSize(s.catalog.Len())

	s.logger.Info("Program registered",
		zap.String("program", id),
		zap.String("source", source),
		zap.Int("frames", program.Len()),
		zap.Duration("duration", program.Duration()))
}

// route maps a topic to its registration source and default identifier
func (s *Scheduler) route(topic string) (source, defaultID string, ok bool) {
	switch {
	case topic == s.cfg.Topics.Sequences:
		return metrics.SourceUnnamed, "", true
	case topic == s.cfg.Topics.Alerts:
		return metrics.SourceAlert, alertProgramID, true
	case strings.HasPrefix(topic, s.cfg.Topics.Programs):
		id := strings.TrimPrefix(topic, s.cfg.Topics.Programs)
		if id == "" || strings.Contains(id, "/") {
			return "", "", false
		}
		return metrics.SourceProgram, id, true
	}
	return "", "", false
}

// Tick publishes the next frame: alerts first, then the rotation.
// An empty catalog makes it a no-op.
func (s *Scheduler) Tick() {
	now := s.clock.Now()
	if s.cfg.Scheduler.HoldFrames && now.Before(s.holdUntil) {
		return
	}

	frame, ok := s.nextAlertFrame()
	if !ok {
		var err error
		frame, err = s.catalog.NextFrame()
		if errors.Is(err, catalog.ErrEmptyCatalog) {
			s.metrics.SetCatalogSize(s.catalog.Len())
			return
		}
		if err != nil {
			s.logger.Error("Failed to pick next frame", zap.Error(err))
			return
		}
	}

	s.metrics.SetCatalogSize(s.catalog.Len())
	s.publishFrame(frame, now)
}

func (s *Scheduler) nextAlertFrame() (domain.Frame, bool) {
	frame, id, ok := s.catalog.NextAlertFrame()
	if !ok {
		return domain.Frame{}, false
	}

	if id != s.currentAlert {
		s.logger.Info("Alert preempting rotation", zap.String("program", id))
		s.currentAlert = id
	}
	if !s.catalog.Has(id) {
		s.logger.Info("Alert played through", zap.String("program", id))
		s.metrics.AlertPlayed()
		s.currentAlert = ""
	}
	return frame, true
}

func (s *Scheduler) publishFrame(frame domain.Frame, now time.Time) {
	err := s.transport.Publish(s.cfg.Topics.Frames, s.cfg.MQTT.QoS, false, frame.Pixels())
	if err != nil {
		// The next tick tries again with the next frame
		s.logger.Warn("Failed to publish frame",
			zap.String("topic", s.cfg.Topics.Frames),
			zap.Error(err))
		s.metrics.PublishFailed()
		return
	}

	s.metrics.FramePublished()
	s.holdUntil = now.Add(frame.Duration())
	s.logger.Debug("Frame published",
		zap.Int("bytes", frame.Len()),
		zap.Duration("duration", frame.Duration()))
}

func (s *Scheduler) startTicker() {
	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.cfg.FrameInterval())
}

func (s *Scheduler) stopTicker() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
}

// tickC returns nil while disconnected, which blocks that select case
func (s *Scheduler) tickC() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C
}

func decodeFailureReason(err error) string {
	switch {
	case errors.Is(err, codec.ErrFrameSize):
		return "frame_size"
	case errors.Is(err, codec.ErrCorruptPixels):
		return "corrupt_pixels"
	case errors.Is(err, codec.ErrEmptySequence):
		return "empty"
	case errors.Is(err, codec.ErrMalformedContainer):
		return "malformed"
	default:
		return "other"
	}
}
