package intel

import (
	"context"
	"sync"
	"time"
)

// testLogger records messages per level
type testLogger struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newTestLogger() *testLogger {
	return &testLogger{messages: make(map[string][]string)}
}

func (l *testLogger) record(level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages[level] = append(l.messages[level], message)
}

func (l *testLogger) Debug(message string, _ ...interface{}) { l.record("debug", message) }
func (l *testLogger) Info(message string, _ ...interface{})  { l.record("info", message) }
func (l *testLogger) Warn(message string, _ ...interface{})  { l.record("warn", message) }
func (l *testLogger) Error(message string, _ ...interface{}) { l.record("error", message) }

func (l *testLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages[level])
}

// mockProvider is a configurable provider for gateway tests
type mockProvider struct {
	mu        sync.Mutex
	calls     int
	lastReq   Request
	GetFn     func(ctx context.Context, req Request) (*Report, error)
	typeValue string
}

func (m *mockProvider) GetReport(ctx context.Context, req Request) (*Report, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq = req
	fn := m.GetFn
	m.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx, req)
}

func (m *mockProvider) GetType() string {
	if m.typeValue == "" {
		return "mock"
	}
	return m.typeValue
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// observation is one Recorder call
type observation struct {
	provider string
	outcome  string
}

type recordingRecorder struct {
	mu           sync.Mutex
	observations []observation
}

func (r *recordingRecorder) ObserveIntel(providerType, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, observation{provider: providerType, outcome: outcome})
}

func (r *recordingRecorder) last() observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.observations) == 0 {
		return observation{}
	}
	return r.observations[len(r.observations)-1]
}

func validReport() *Report {
	return &Report{
		RiskLevel:       RiskLow,
		Summary:         "Quiet evening in the district.",
		CityName:        "Johannesburg",
		Recommendations: []string{"Stay on main roads."},
		TacticalZones: []Zone{
			{ID: "r1", Lat: -26.1, Lng: 28.05, Radius: 250, Type: ZoneRed, Label: "TAXI_RANK"},
			{ID: "g1", Lat: -26.11, Lng: 28.06, Radius: 300, Type: ZoneGreen, Label: "MALL"},
		},
		NearbyPOIs: []Device{
			{ID: "police-1", Type: POIPolice, Label: "SAPS_SANDTON", SignalStrength: 1, Lat: Float(-26.101), Lng: Float(28.051)},
		},
	}
}
