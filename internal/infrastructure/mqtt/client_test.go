package mqtt

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/luftuj/hru-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "luftuj-test",
			TLS:      false,
		},
		Auth: config.MQTTAuthConfig{
			Username: "",
			Password: "",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Topic Builder Tests
// =============================================================================

func TestTopics(t *testing.T) {
	topics := Topics{}
	slug := "atrea-duplex-380"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"state", topics.State(slug), "luftuj/hru/atrea-duplex-380/state"},
		{"status", topics.Status(slug), "luftuj/hru/atrea-duplex-380/status"},
		{"boost duration", topics.BoostDurationSet(slug), "luftuj/hru/atrea-duplex-380/boost_duration/set"},
		{"boost cancel", topics.BoostCancel(slug), "luftuj/hru/atrea-duplex-380/boost/cancel"},
		{"boost start", topics.BoostStart(slug, "m1"), "luftuj/hru/atrea-duplex-380/boost/m1/start"},
		{"boost start infinite", topics.BoostStartInfinite(slug, "m1"), "luftuj/hru/atrea-duplex-380/boost/m1/start_infinite"},
		{"discovery", topics.Discovery("button", "unit42", "boost_m1"), "homeassistant/button/luftuj_hru_unit42/boost_m1/config"},
		{"all boost starts", topics.AllBoostStarts(slug), "luftuj/hru/atrea-duplex-380/boost/+/start"},
		{"all infinite starts", topics.AllBoostStartsInfinite(slug), "luftuj/hru/atrea-duplex-380/boost/+/start_infinite"},
		{"all unit topics", topics.AllUnitTopics(slug), "luftuj/hru/atrea-duplex-380/#"},
		{"luftator set", topics.LuftatorSet("bedroom"), "luftuj/luftator/bedroom/set"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseBoostStart(t *testing.T) {
	tests := []struct {
		topic    string
		modeID   string
		infinite bool
		ok       bool
	}{
		{"luftuj/hru/unit/boost/m1/start", "m1", false, true},
		{"luftuj/hru/unit/boost/m1/start_infinite", "m1", true, true},
		{"luftuj/hru/unit/boost/cancel", "", false, false},
		{"luftuj/hru/unit/boost//start", "", false, false},
		{"luftuj/hru/unit/boost_duration/set", "", false, false},
		{"other/hru/unit/boost/m1/start", "", false, false},
		{"", "", false, false},
	}
	for _, tt := range tests {
		modeID, infinite, ok := ParseBoostStart(tt.topic)
		if modeID != tt.modeID || infinite != tt.infinite || ok != tt.ok {
			t.Errorf("ParseBoostStart(%q) = %q,%t,%t; want %q,%t,%t",
				tt.topic, modeID, infinite, ok, tt.modeID, tt.infinite, tt.ok)
		}
	}
}

// =============================================================================
// Option Building Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected one broker, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
	}
	if opts.ClientID != "luftuj-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if !opts.CleanSession {
		t.Error("CleanSession should be enabled")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect should be enabled")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config should require the minimum TLS version")
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)
	statusTopic := Topics{}.Status("atrea-duplex-380")
	configureLWT(opts, statusTopic)

	if opts.WillTopic != statusTopic {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, statusTopic)
	}
	if string(opts.WillPayload) != StatusOffline {
		t.Errorf("WillPayload = %q, want %q", opts.WillPayload, StatusOffline)
	}
	if !opts.WillRetained {
		t.Error("will must be retained")
	}
	if opts.WillQos != statusQoS {
		t.Errorf("WillQos = %d, want %d", opts.WillQos, statusQoS)
	}
}

// =============================================================================
// Validation Tests (no broker required)
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("luftuj/hru/u/state", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS error = %v, want ErrInvalidQoS", err)
	}
	big := []byte(strings.Repeat("a", maxPayloadSize+1))
	if err := c.Publish("luftuj/hru/u/state", big, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed", err)
	}
	if err := c.Publish("luftuj/hru/u/state", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected publish error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
	handler := func(topic string, payload []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("luftuj/#", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("luftuj/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("luftuj/#", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected subscribe error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("failed subscribes must not be tracked, count = %d", c.SubscriptionCount())
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("luftuj/#"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected unsubscribe error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestSubscriptionTrackingEmpty(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if c.HasSubscription("luftuj/hru/u/state") {
		t.Error("HasSubscription() = true on empty client")
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

// fakeMessage implements pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestWrapHandlerRecoversPanic(t *testing.T) {
	c := &Client{}
	logger := &mockLogger{}
	c.SetLogger(logger)

	wrapped := c.wrapHandler(func(topic string, payload []byte) error {
		panic("handler blew up")
	})

	// Must not propagate the panic.
	wrapped(nil, fakeMessage{topic: "luftuj/hru/u/boost/cancel", payload: []byte(PayloadCancel)})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) != 1 {
		t.Errorf("expected one logged panic, got %d", len(logger.errors))
	}
}

func TestWrapHandlerLogsError(t *testing.T) {
	c := &Client{}
	logger := &mockLogger{}
	c.SetLogger(logger)

	wrapped := c.wrapHandler(func(topic string, payload []byte) error {
		return errors.New("bad payload")
	})

	wrapped(nil, fakeMessage{topic: "luftuj/hru/u/boost_duration/set", payload: []byte("NaN")})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("expected one logged warning, got %d", len(logger.warns))
	}
}

func TestWrapHandlerNoLogger(t *testing.T) {
	c := &Client{}
	wrapped := c.wrapHandler(func(topic string, payload []byte) error {
		panic("still recovered")
	})
	wrapped(nil, fakeMessage{topic: "luftuj/hru/u/state"})
}
