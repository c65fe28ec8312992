package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/luftuj/hru-core/internal/catalog"
	"github.com/luftuj/hru-core/internal/hru"
	"github.com/luftuj/hru-core/internal/infrastructure/database"
	"github.com/luftuj/hru-core/internal/infrastructure/mqtt"
	"github.com/luftuj/hru-core/internal/settings"
	"github.com/luftuj/hru-core/internal/timeline"
	_ "github.com/luftuj/hru-core/migrations"
)

func f64Ptr(v float64) *float64 { return &v }

// publishRec is one recorded broker publish.
type publishRec struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// fakeBroker records publishes and subscriptions.
type fakeBroker struct {
	mu          sync.Mutex
	publishes   []publishRec
	subs        map[string]mqtt.MessageHandler
	statusTopic string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishes = append(b.publishes, publishRec{topic, payload, qos, retained})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
	return nil
}

func (b *fakeBroker) SetStatusTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusTopic = topic
}

func (b *fakeBroker) IsConnected() bool { return true }

func (b *fakeBroker) published() []publishRec {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishRec, len(b.publishes))
	copy(out, b.publishes)
	return out
}

func (b *fakeBroker) countTo(topic string) int {
	n := 0
	for _, p := range b.published() {
		if p.topic == topic {
			n++
		}
	}
	return n
}

// fakeDevice serves a canned configuration and read values.
type fakeDevice struct {
	cfg    *hru.ResolvedConfiguration
	values *hru.Values
	err    error
}

func (f *fakeDevice) ResolvedConfiguration(context.Context) (*hru.ResolvedConfiguration, error) {
	return f.cfg, nil
}

func (f *fakeDevice) ReadValues(context.Context) (*hru.Values, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

// fakeBoosts records boost commands.
type fakeBoosts struct {
	mu      sync.Mutex
	started []struct {
		modeID  string
		minutes int
	}
	cancels int
	state   timeline.ActiveState
}

func (f *fakeBoosts) StartBoost(_ context.Context, modeID string, minutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, struct {
		modeID  string
		minutes int
	}{modeID, minutes})
	return nil
}

func (f *fakeBoosts) CancelBoost(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeBoosts) ActiveState() timeline.ActiveState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func testUnit() *catalog.HeatRecoveryUnit {
	return &catalog.HeatRecoveryUnit{
		ID:   "unit42",
		Name: "Atrea Duplex 380",
		Code: "DUPLEX-380",
	}
}

func testStrategy() *catalog.RegulationStrategy {
	return &catalog.RegulationStrategy{
		ID:              "atrea-rd5",
		Name:            "Atrea RD5",
		Capabilities:    catalog.CapPower | catalog.CapTemperature | catalog.CapMode,
		TemperatureUnit: "°C",
	}
}

func testStores(t *testing.T) (*settings.Store, *timeline.Store) {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "discovery.db"),
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	store := settings.NewStore(db)
	return store, timeline.NewStore(store)
}

func testPublisher(t *testing.T, broker *fakeBroker, device *fakeDevice, boosts *fakeBoosts) (*Publisher, *settings.Store, *timeline.Store) {
	t.Helper()
	store, modes := testStores(t)
	p := NewPublisher(broker, store, modes, device, boosts, Config{
		PublishDelay:  time.Millisecond,
		StateInterval: time.Hour, // state publishes only on demand in tests
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return p, store, modes
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ─── Discovery Cycle ───

func TestRefresh_PublishesAxisEntities(t *testing.T) {
	broker := newFakeBroker()
	device := &fakeDevice{cfg: &hru.ResolvedConfiguration{Unit: testUnit(), Strategy: testStrategy()}}
	p, _, _ := testPublisher(t, broker, device, &fakeBoosts{})

	p.Start(context.Background())
	defer p.Stop()

	want := []string{
		"homeassistant/sensor/luftuj_hru_unit42/power/config",
		"homeassistant/sensor/luftuj_hru_unit42/temperature/config",
		"homeassistant/sensor/luftuj_hru_unit42/mode/config",
		"homeassistant/sensor/luftuj_hru_unit42/active_mode/config",
		"homeassistant/number/luftuj_hru_unit42/boost_duration/config",
		"homeassistant/button/luftuj_hru_unit42/boost_cancel/config",
	}
	waitFor(t, func() bool { return len(broker.published()) >= len(want) }, "discovery documents not published")

	for _, topic := range want {
		if broker.countTo(topic) != 1 {
			t.Errorf("expected one publish to %s, got %d", topic, broker.countTo(topic))
		}
	}
	if broker.statusTopic != "luftuj/hru/atrea-duplex-380/status" {
		t.Errorf("status topic = %q", broker.statusTopic)
	}

	// All discovery documents are retained and reference the availability topic.
	for _, rec := range broker.published() {
		if !rec.retained {
			t.Errorf("publish to %s not retained", rec.topic)
		}
		var cfg entityConfig
		if err := json.Unmarshal(rec.payload, &cfg); err != nil {
			t.Fatalf("unmarshal %s: %v", rec.topic, err)
		}
		if cfg.AvailabilityTopic != "luftuj/hru/atrea-duplex-380/status" {
			t.Errorf("%s availability = %q", rec.topic, cfg.AvailabilityTopic)
		}
	}
}

func TestRefresh_NoUnitConfigured(t *testing.T) {
	broker := newFakeBroker()
	p, _, _ := testPublisher(t, broker, &fakeDevice{cfg: nil}, &fakeBoosts{})

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(broker.published()) != 0 {
		t.Errorf("nothing should be published without a unit, got %d", len(broker.published()))
	}
	if len(broker.subs) != 0 {
		t.Errorf("nothing should be subscribed without a unit, got %d", len(broker.subs))
	}
}

func TestRefresh_SubscribesCommandTopics(t *testing.T) {
	broker := newFakeBroker()
	device := &fakeDevice{cfg: &hru.ResolvedConfiguration{Unit: testUnit(), Strategy: testStrategy()}}
	p, _, _ := testPublisher(t, broker, device, &fakeBoosts{})

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	for _, topic := range []string{
		"luftuj/hru/atrea-duplex-380/boost/+/start",
		"luftuj/hru/atrea-duplex-380/boost/+/start_infinite",
		"luftuj/hru/atrea-duplex-380/boost/cancel",
		"luftuj/hru/atrea-duplex-380/boost_duration/set",
	} {
		if _, ok := broker.subs[topic]; !ok {
			t.Errorf("missing subscription %s", topic)
		}
	}
}

// ─── Boost Reconciliation ───

func TestReconcile_RenamedBoostMode(t *testing.T) {
	broker := newFakeBroker()
	device := &fakeDevice{cfg: &hru.ResolvedConfiguration{Unit: testUnit(), Strategy: testStrategy()}}
	p, store, modes := testPublisher(t, broker, device, &fakeBoosts{})
	ctx := context.Background()

	if err := store.SetDiscoveredBoosts(ctx, map[string]string{"m1": "party"}); err != nil {
		t.Fatal(err)
	}
	if err := modes.SetModes(ctx, []timeline.Mode{
		{ID: "m1", Name: "Party Time", Power: f64Ptr(100), IsBoost: true},
	}); err != nil {
		t.Fatal(err)
	}

	p.Start(ctx)
	defer p.Stop()

	oldTopic := "homeassistant/button/luftuj_hru_unit42/boost_party/config"
	newTopic := "homeassistant/button/luftuj_hru_unit42/boost_party-time/config"
	waitFor(t, func() bool {
		return broker.countTo(oldTopic) == 1 && broker.countTo(newTopic) == 1
	}, "rename must remove the old slug and publish the new one")

	for _, rec := range broker.published() {
		if rec.topic == oldTopic && len(rec.payload) != 0 {
			t.Error("removal publish must carry an empty payload")
		}
		if rec.topic == newTopic && len(rec.payload) == 0 {
			t.Error("new slug publish must carry the discovery document")
		}
	}

	persisted, err := store.GetDiscoveredBoosts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if persisted["m1"] != "party-time" {
		t.Errorf("persisted map = %v, want m1 → party-time", persisted)
	}
}

func TestReconcile_DeletedBoostMode(t *testing.T) {
	broker := newFakeBroker()
	device := &fakeDevice{cfg: &hru.ResolvedConfiguration{Unit: testUnit(), Strategy: testStrategy()}}
	p, store, _ := testPublisher(t, broker, device, &fakeBoosts{})
	ctx := context.Background()

	if err := store.SetDiscoveredBoosts(ctx, map[string]string{"gone": "away-mode"}); err != nil {
		t.Fatal(err)
	}

	p.Start(ctx)
	defer p.Stop()

	removal := "homeassistant/button/luftuj_hru_unit42/boost_away-mode/config"
	waitFor(t, func() bool { return broker.countTo(removal) == 1 }, "deleted mode must be removed")

	// No replacement button may appear for the deleted mode.
	for _, rec := range broker.published() {
		if strings.Contains(rec.topic, "boost_away-mode") && len(rec.payload) != 0 {
			t.Error("deleted mode must not be re-published")
		}
	}

	persisted, err := store.GetDiscoveredBoosts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 0 {
		t.Errorf("persisted map should be empty, got %v", persisted)
	}
}

func TestReconcile_BoostFlagDropped(t *testing.T) {
	broker := newFakeBroker()
	device := &fakeDevice{cfg: &hru.ResolvedConfiguration{Unit: testUnit(), Strategy: testStrategy()}}
	p, store, modes := testPublisher(t, broker, device, &fakeBoosts{})
	ctx := context.Background()

	if err := store.SetDiscoveredBoosts(ctx, map[string]string{"m1": "party"}); err != nil {
		t.Fatal(err)
	}
	// Mode still exists but is no longer boost-flagged.
	if err := modes.SetModes(ctx, []timeline.Mode{
		{ID: "m1", Name: "Party", Power: f64Ptr(100), IsBoost: false},
	}); err != nil {
		t.Fatal(err)
	}

	p.Start(ctx)
	defer p.Stop()

	removal := "homeassistant/button/luftuj_hru_unit42/boost_party/config"
	waitFor(t, func() bool { return broker.countTo(removal) == 1 }, "dropped boost flag must remove the button")
}

// ─── Command Handlers ───

func TestHandleBoostStart(t *testing.T) {
	boosts := &fakeBoosts{}
	device := &fakeDevice{cfg: &hru.ResolvedConfiguration{Unit: testUnit(), Strategy: testStrategy()}}
	p, store, _ := testPublisher(t, newFakeBroker(), device, boosts)
	p.ctx = context.Background()

	if err := store.SetBoostDuration(p.ctx, 45); err != nil {
		t.Fatal(err)
	}

	topic := mqtt.Topics{}.BoostStart("atrea-duplex-380", "m1")
	if err := p.handleBoostStart(topic, []byte(mqtt.PayloadStart)); err != nil {
		t.Fatalf("handleBoostStart() error = %v", err)
	}
	if len(boosts.started) != 1 || boosts.started[0].modeID != "m1" || boosts.started[0].minutes != 45 {
		t.Errorf("unexpected boost call: %+v", boosts.started)
	}

	infinite := mqtt.Topics{}.BoostStartInfinite("atrea-duplex-380", "m2")
	if err := p.handleBoostStart(infinite, []byte(mqtt.PayloadStart)); err != nil {
		t.Fatalf("handleBoostStart(infinite) error = %v", err)
	}
	if boosts.started[1].minutes != timeline.InfiniteDurationMinutes {
		t.Errorf("infinite start minutes = %d", boosts.started[1].minutes)
	}

	if err := p.handleBoostStart(topic, []byte("GO")); !errors.Is(err, ErrUnexpectedPayload) {
		t.Errorf("wrong payload error = %v, want ErrUnexpectedPayload", err)
	}
	if len(boosts.started) != 2 {
		t.Errorf("rejected payload must not start a boost")
	}
}

func TestHandleBoostCancel(t *testing.T) {
	boosts := &fakeBoosts{}
	p, _, _ := testPublisher(t, newFakeBroker(), &fakeDevice{}, boosts)
	p.ctx = context.Background()

	topic := mqtt.Topics{}.BoostCancel("atrea-duplex-380")
	if err := p.handleBoostCancel(topic, []byte(mqtt.PayloadCancel)); err != nil {
		t.Fatalf("handleBoostCancel() error = %v", err)
	}
	if boosts.cancels != 1 {
		t.Errorf("cancels = %d, want 1", boosts.cancels)
	}

	if err := p.handleBoostCancel(topic, []byte("STOP")); !errors.Is(err, ErrUnexpectedPayload) {
		t.Errorf("wrong payload error = %v, want ErrUnexpectedPayload", err)
	}
}

func TestHandleBoostDuration(t *testing.T) {
	p, store, _ := testPublisher(t, newFakeBroker(), &fakeDevice{}, &fakeBoosts{})
	p.ctx = context.Background()

	topic := mqtt.Topics{}.BoostDurationSet("atrea-duplex-380")
	if err := p.handleBoostDuration(topic, []byte(" 90 ")); err != nil {
		t.Fatalf("handleBoostDuration() error = %v", err)
	}
	got, err := store.GetBoostDuration(p.ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 90 {
		t.Errorf("persisted duration = %d, want 90", got)
	}

	for _, bad := range []string{"NaN", "-5", "0", "12.5", ""} {
		if err := p.handleBoostDuration(topic, []byte(bad)); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("payload %q error = %v, want ErrInvalidDuration", bad, err)
		}
	}
}

// ─── State Publishing ───

func TestPublishState(t *testing.T) {
	broker := newFakeBroker()
	device := &fakeDevice{
		cfg: &hru.ResolvedConfiguration{Unit: testUnit(), Strategy: testStrategy()},
		values: &hru.Values{
			Value:     hru.AxisValues{Power: f64Ptr(70), Temperature: f64Ptr(21.5), Mode: "Auto"},
			Registers: map[string]float64{"$bypass": 1},
		},
	}
	boosts := &fakeBoosts{state: timeline.ActiveState{Source: timeline.SourceSchedule, ModeName: "Night"}}
	p, _, _ := testPublisher(t, broker, device, boosts)

	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop()

	if err := p.PublishState(ctx); err != nil {
		t.Fatalf("PublishState() error = %v", err)
	}

	stateTopic := "luftuj/hru/atrea-duplex-380/state"
	waitFor(t, func() bool { return broker.countTo(stateTopic) >= 1 }, "state not published")

	var rec publishRec
	for _, pub := range broker.published() {
		if pub.topic == stateTopic {
			rec = pub
		}
	}
	if rec.qos != 2 || !rec.retained {
		t.Errorf("state publish qos=%d retained=%t, want qos 2 retained", rec.qos, rec.retained)
	}

	var state statePayload
	if err := json.Unmarshal(rec.payload, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state.Value.Power == nil || *state.Value.Power != 70 {
		t.Errorf("state power = %v", state.Value.Power)
	}
	if state.Source != timeline.SourceSchedule || state.ModeName != "Night" {
		t.Errorf("state source/mode = %s/%s", state.Source, state.ModeName)
	}
	if state.Registers["$bypass"] != 1 {
		t.Errorf("state registers = %v", state.Registers)
	}
}

// fakeTelemetry records read-cycle values forwarded by the publisher.
type fakeTelemetry struct {
	units     []string
	power     *float64
	registers map[string]float64
}

func (f *fakeTelemetry) WriteReadCycle(unitID string, power, _ *float64, _ string) {
	f.units = append(f.units, unitID)
	f.power = power
}

func (f *fakeTelemetry) WriteRegisters(_ string, registers map[string]float64) {
	f.registers = registers
}

func TestPublishState_ForwardsTelemetry(t *testing.T) {
	broker := newFakeBroker()
	device := &fakeDevice{
		cfg: &hru.ResolvedConfiguration{Unit: testUnit(), Strategy: testStrategy()},
		values: &hru.Values{
			Value:     hru.AxisValues{Power: f64Ptr(55), Mode: "Auto"},
			Registers: map[string]float64{"$bypass": 1},
		},
	}
	p, _, _ := testPublisher(t, broker, device, &fakeBoosts{})
	sink := &fakeTelemetry{}
	p.SetTelemetry(sink)

	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop()

	if err := p.PublishState(ctx); err != nil {
		t.Fatalf("PublishState() error = %v", err)
	}

	if len(sink.units) != 1 || sink.units[0] != "unit42" {
		t.Fatalf("read cycle forwarded for %v, want [unit42]", sink.units)
	}
	if sink.power == nil || *sink.power != 55 {
		t.Errorf("forwarded power = %v, want 55", sink.power)
	}
	if sink.registers["$bypass"] != 1 {
		t.Errorf("forwarded registers = %v", sink.registers)
	}
}

func TestPublishState_NotConfigured(t *testing.T) {
	broker := newFakeBroker()
	p, _, _ := testPublisher(t, broker, &fakeDevice{err: hru.ErrNotConfigured}, &fakeBoosts{})

	if err := p.PublishState(context.Background()); err != nil {
		t.Errorf("PublishState() without unit error = %v, want nil", err)
	}
	if len(broker.published()) != 0 {
		t.Errorf("nothing should be published, got %d", len(broker.published()))
	}
}

// ─── Outbound Queue ───

func TestQueuePreservesOrder(t *testing.T) {
	broker := newFakeBroker()
	device := &fakeDevice{cfg: nil}
	p, _, _ := testPublisher(t, broker, device, &fakeBoosts{})

	p.Start(context.Background())
	defer p.Stop()

	for i, topic := range []string{"luftuj/test/a", "luftuj/test/b", "luftuj/test/c"} {
		p.enqueue(topic, []byte{byte(i)}, 1, false)
	}

	waitFor(t, func() bool { return len(broker.published()) == 3 }, "queue did not drain")

	pubs := broker.published()
	for i, want := range []string{"luftuj/test/a", "luftuj/test/b", "luftuj/test/c"} {
		if pubs[i].topic != want {
			t.Errorf("publish %d = %s, want %s", i, pubs[i].topic, want)
		}
	}
}
