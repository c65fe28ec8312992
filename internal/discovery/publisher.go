package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/luftuj/hru-core/internal/hru"
	"github.com/luftuj/hru-core/internal/infrastructure/mqtt"
	"github.com/luftuj/hru-core/internal/settings"
	"github.com/luftuj/hru-core/internal/timeline"
)

// Default pacing for the publisher loops.
const (
	// DefaultPublishDelay is the fixed gap between queued publishes so a
	// discovery burst does not trip broker flow-control limits.
	DefaultPublishDelay = 100 * time.Millisecond

	// DefaultStateInterval is the cadence of the periodic state publish.
	DefaultStateInterval = 30 * time.Second

	// DefaultBoostMinutes is used when no boost duration has been persisted.
	DefaultBoostMinutes = 60

	// outboundQueueSize bounds the publish queue; a full discovery cycle for
	// one unit stays well below this.
	outboundQueueSize = 128

	stateQoS     = 2
	discoveryQoS = 1
)

// Broker is the MQTT client surface the publisher needs.
// *mqtt.Client satisfies it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	SetStatusTopic(topic string)
	IsConnected() bool
}

// DeviceReader is the controller surface used for discovery and state reads.
type DeviceReader interface {
	ResolvedConfiguration(ctx context.Context) (*hru.ResolvedConfiguration, error)
	ReadValues(ctx context.Context) (*hru.Values, error)
}

// BoostControl is the timeline surface driven by incoming commands.
type BoostControl interface {
	StartBoost(ctx context.Context, modeID string, durationMinutes int) error
	CancelBoost(ctx context.Context) error
	ActiveState() timeline.ActiveState
}

// Telemetry receives the values of every state publish cycle.
// *influxdb.Client satisfies it.
type Telemetry interface {
	WriteReadCycle(unitID string, power, temperature *float64, mode string)
	WriteRegisters(unitID string, registers map[string]float64)
}

// Config tunes the publisher loops. Zero values fall back to defaults.
type Config struct {
	PublishDelay  time.Duration
	StateInterval time.Duration
	BoostMinutes  int
}

// outbound is one queued publish.
type outbound struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// Publisher maintains the unit's presence on the broker: discovery documents
// for every capability, boost buttons for every boost-flagged mode, the
// periodic retained state, and the command subscriptions that feed the
// timeline. All outbound traffic funnels through one serialized queue with a
// fixed inter-publish delay.
type Publisher struct {
	broker    Broker
	settings  *settings.Store
	modes     *timeline.Store
	device    DeviceReader
	boosts    BoostControl
	telemetry Telemetry
	logger    *slog.Logger

	publishDelay  time.Duration
	stateInterval time.Duration
	boostMinutes  int

	queue    chan outbound
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	ctx context.Context

	mu        sync.Mutex
	unitSlug  string
	unitID    string
	subTopics []string
}

// NewPublisher creates a discovery/state publisher.
func NewPublisher(broker Broker, store *settings.Store, modes *timeline.Store, device DeviceReader, boosts BoostControl, cfg Config, logger *slog.Logger) *Publisher {
	if cfg.PublishDelay == 0 {
		cfg.PublishDelay = DefaultPublishDelay
	}
	if cfg.StateInterval == 0 {
		cfg.StateInterval = DefaultStateInterval
	}
	if cfg.BoostMinutes == 0 {
		cfg.BoostMinutes = DefaultBoostMinutes
	}
	return &Publisher{
		broker:        broker,
		settings:      store,
		modes:         modes,
		device:        device,
		boosts:        boosts,
		logger:        logger,
		publishDelay:  cfg.PublishDelay,
		stateInterval: cfg.StateInterval,
		boostMinutes:  cfg.BoostMinutes,
		queue:         make(chan outbound, outboundQueueSize),
		stop:          make(chan struct{}),
	}
}

// SetTelemetry registers an optional sink that receives the values of every
// state publish cycle. Must be called before Start.
func (p *Publisher) SetTelemetry(t Telemetry) {
	p.telemetry = t
}

// Start launches the outbound queue and the periodic state loop, then runs
// an initial discovery cycle. Call Refresh after a unit-selection change or
// broker reconnect to re-publish.
func (p *Publisher) Start(ctx context.Context) {
	p.ctx = ctx

	p.wg.Add(2)
	go p.queueLoop()
	go p.stateLoop(ctx)

	if err := p.Refresh(ctx); err != nil {
		p.logger.Warn("initial discovery cycle failed", "error", err)
	}
	p.logger.Info("discovery publisher started", "state_interval", p.stateInterval.String())
}

// Stop halts both loops. Queued publishes that have not been sent yet are
// dropped. Safe to call multiple times.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
	p.logger.Info("discovery publisher stopped")
}

// Refresh runs one full discovery cycle for the currently selected unit:
// command subscriptions, availability topic, per-capability entities, and
// the boost-button reconciliation. With no unit configured it is a no-op.
func (p *Publisher) Refresh(ctx context.Context) error {
	cfg, err := p.device.ResolvedConfiguration(ctx)
	if err != nil {
		return fmt.Errorf("discovery refresh: %w", err)
	}
	if cfg == nil {
		p.logger.Debug("discovery skipped, no unit configured")
		return nil
	}

	unitSlug := Slugify(cfg.Unit.Name)
	p.ensureSubscriptions(unitSlug)
	p.mu.Lock()
	p.unitID = cfg.Unit.ID
	p.mu.Unlock()
	p.broker.SetStatusTopic(mqtt.Topics{}.Status(unitSlug))

	for _, e := range buildAxisEntities(cfg.Unit, cfg.Strategy, unitSlug) {
		p.enqueueEntity(cfg.Unit.ID, e)
	}

	if err := p.reconcileBoosts(ctx, cfg, unitSlug); err != nil {
		return fmt.Errorf("discovery refresh: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := p.settings.Set(ctx, settings.KeyLastDiscovery, now); err != nil {
		p.logger.Warn("recording discovery timestamp failed", "error", err)
	}
	if err := p.settings.SetLastUnitID(ctx, cfg.Unit.ID); err != nil {
		p.logger.Warn("recording last unit failed", "error", err)
	}

	p.logger.Info("discovery published", "unit", cfg.Unit.ID, "slug", unitSlug)
	return nil
}

// reconcileBoosts diffs the boost-flagged mode set against the persisted
// {modeId → publishedSlug} map. Stale slugs (mode deleted, boost flag
// dropped, or name changed) get an empty retained publish that removes the
// old button; current modes are then (re)published and the map is updated.
func (p *Publisher) reconcileBoosts(ctx context.Context, cfg *hru.ResolvedConfiguration, unitSlug string) error {
	previous, err := p.settings.GetDiscoveredBoosts(ctx)
	if err != nil {
		return fmt.Errorf("loading published boosts: %w", err)
	}
	allModes, err := p.modes.Modes(ctx)
	if err != nil {
		return fmt.Errorf("loading modes: %w", err)
	}

	topics := mqtt.Topics{}
	current := make(map[string]string)
	for _, m := range allModes {
		if m.IsBoost {
			current[m.ID] = Slugify(m.Name)
		}
	}

	for modeID, oldSlug := range previous {
		if newSlug, ok := current[modeID]; !ok || newSlug != oldSlug {
			p.enqueue(topics.Discovery(componentButton, cfg.Unit.ID, "boost_"+oldSlug), nil, discoveryQoS, true)
		}
	}

	for _, m := range allModes {
		if !m.IsBoost {
			continue
		}
		p.enqueueEntity(cfg.Unit.ID, buildBoostEntity(cfg.Unit, cfg.Strategy, unitSlug, m, current[m.ID]))
	}

	if err := p.settings.SetDiscoveredBoosts(ctx, current); err != nil {
		return fmt.Errorf("persisting published boosts: %w", err)
	}
	return nil
}

// statePayload is the periodic retained state document.
type statePayload struct {
	Value     hru.AxisValues     `json:"value"`
	Registers map[string]float64 `json:"registers,omitempty"`
	Source    timeline.Source    `json:"source"`
	ModeName  string             `json:"modeName,omitempty"`
	Timestamp string             `json:"timestamp"`
}

// PublishState runs one read cycle, queues the retained state document, and
// forwards the values to the telemetry sink. Skips quietly when no unit is
// configured.
func (p *Publisher) PublishState(ctx context.Context) error {
	p.mu.Lock()
	unitSlug := p.unitSlug
	unitID := p.unitID
	p.mu.Unlock()
	if unitSlug == "" {
		return nil
	}

	values, err := p.device.ReadValues(ctx)
	if err != nil {
		if errors.Is(err, hru.ErrNotConfigured) {
			return nil
		}
		return fmt.Errorf("state read: %w", err)
	}

	if p.telemetry != nil && unitID != "" {
		p.telemetry.WriteReadCycle(unitID, values.Value.Power, values.Value.Temperature, values.Value.Mode)
		if len(values.Registers) > 0 {
			p.telemetry.WriteRegisters(unitID, values.Registers)
		}
	}

	active := p.boosts.ActiveState()
	payload, err := json.Marshal(statePayload{
		Value:     values.Value,
		Registers: values.Registers,
		Source:    active.Source,
		ModeName:  active.ModeName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("state payload: %w", err)
	}

	p.enqueue(mqtt.Topics{}.State(unitSlug), payload, stateQoS, true)
	return nil
}

// ensureSubscriptions (re)subscribes the command topics when the unit slug
// changes, dropping subscriptions of the previous unit first.
func (p *Publisher) ensureSubscriptions(unitSlug string) {
	p.mu.Lock()
	if p.unitSlug == unitSlug {
		p.mu.Unlock()
		return
	}
	old := p.subTopics
	p.unitSlug = unitSlug
	p.mu.Unlock()

	for _, topic := range old {
		if err := p.broker.Unsubscribe(topic); err != nil {
			p.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
	}

	topics := mqtt.Topics{}
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{topics.AllBoostStarts(unitSlug), p.handleBoostStart},
		{topics.AllBoostStartsInfinite(unitSlug), p.handleBoostStart},
		{topics.BoostCancel(unitSlug), p.handleBoostCancel},
		{topics.BoostDurationSet(unitSlug), p.handleBoostDuration},
	}

	registered := make([]string, 0, len(subs))
	for _, s := range subs {
		if err := p.broker.Subscribe(s.topic, discoveryQoS, s.handler); err != nil {
			p.logger.Warn("subscribe failed", "topic", s.topic, "error", err)
			continue
		}
		registered = append(registered, s.topic)
	}

	p.mu.Lock()
	p.subTopics = registered
	p.mu.Unlock()
}

// handleBoostStart starts a boost for the mode embedded in the topic. The
// infinite form carries the duration sentinel; the timed form uses the
// persisted default duration.
func (p *Publisher) handleBoostStart(topic string, payload []byte) error {
	if string(payload) != mqtt.PayloadStart {
		return fmt.Errorf("%w: %q on %s", ErrUnexpectedPayload, payload, topic)
	}
	modeID, infinite, ok := mqtt.ParseBoostStart(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrUnexpectedPayload, topic)
	}

	minutes := timeline.InfiniteDurationMinutes
	if !infinite {
		var err error
		minutes, err = p.settings.GetBoostDuration(p.ctx, p.boostMinutes)
		if err != nil {
			p.logger.Warn("boost duration unreadable, using default", "error", err)
			minutes = p.boostMinutes
		}
	}

	return p.boosts.StartBoost(p.ctx, modeID, minutes)
}

// handleBoostCancel cancels the active boost.
func (p *Publisher) handleBoostCancel(topic string, payload []byte) error {
	if string(payload) != mqtt.PayloadCancel {
		return fmt.Errorf("%w: %q on %s", ErrUnexpectedPayload, payload, topic)
	}
	return p.boosts.CancelBoost(p.ctx)
}

// handleBoostDuration persists a new default boost duration in minutes.
func (p *Publisher) handleBoostDuration(topic string, payload []byte) error {
	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil || value < 1 || value != float64(int(value)) {
		return fmt.Errorf("%w: %q", ErrInvalidDuration, payload)
	}
	return p.settings.SetBoostDuration(p.ctx, int(value))
}

// enqueueEntity marshals and queues one discovery document.
func (p *Publisher) enqueueEntity(unitID string, e entity) {
	payload, err := json.Marshal(e.config)
	if err != nil {
		p.logger.Error("discovery document marshal failed", "entity", e.entityID, "error", err)
		return
	}
	p.enqueue(mqtt.Topics{}.Discovery(e.component, unitID, e.entityID), payload, discoveryQoS, true)
}

// enqueue adds one publish to the outbound queue, dropping with a log entry
// when the queue is full.
func (p *Publisher) enqueue(topic string, payload []byte, qos byte, retained bool) {
	select {
	case p.queue <- outbound{topic: topic, payload: payload, qos: qos, retained: retained}:
	default:
		p.logger.Warn("outbound queue full, publish dropped", "topic", topic)
	}
}

// queueLoop drains the outbound queue one publish at a time with a fixed
// delay between publishes.
func (p *Publisher) queueLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case out := <-p.queue:
			if err := p.broker.Publish(out.topic, out.payload, out.qos, out.retained); err != nil {
				p.logger.Warn("publish failed", "topic", out.topic, "error", err)
			}
			select {
			case <-p.stop:
				return
			case <-time.After(p.publishDelay):
			}
		}
	}
}

// stateLoop queues a state publish on every interval.
func (p *Publisher) stateLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.stateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PublishState(ctx); err != nil {
				p.logger.Warn("state publish failed", "error", err)
			}
		}
	}
}
