package metrics

import "sync"

// Event names counted by the coordinator.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventJoin       = "join"

	EventRelayOffer     = "relay_offer"
	EventRelayAnswer    = "relay_answer"
	EventRelayCandidate = "relay_ice_candidate"
	EventNotify         = "notify"

	EventDropMalformed     = "drop_malformed"
	EventDropUnknownType   = "drop_unknown_type"
	EventDropBeforeJoin    = "drop_before_join"
	EventDropRejoin        = "drop_rejoin"
	EventDropWrongRole     = "drop_wrong_role"
	EventDropNoPublisher   = "drop_no_publisher"
	EventSendSkipped       = "send_skipped"
	EventPublisherReplaced = "publisher_replaced"
)

// Metrics is a concurrency-safe counter registry. A nil *Metrics is valid
// and discards everything.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
