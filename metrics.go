package catguard

import "sync/atomic"

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful admin logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts credential mismatches and unknown users.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins rejected by the login budget.
	MetricLoginRateLimited
	// MetricLoginIPBlocked counts logins rejected by the IP block list.
	MetricLoginIPBlocked
	// MetricLoginLocked counts logins rejected while a lockout is running.
	MetricLoginLocked
	// MetricLockoutTriggered counts threshold crossings into Locked.
	MetricLockoutTriggered
	// MetricIPBlocked counts block-list insertions.
	MetricIPBlocked
	// MetricPasswordChangeSuccess counts accepted password changes.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeRejected counts policy rejections.
	MetricPasswordChangeRejected
	// MetricProvisionSuccess counts created accounts.
	MetricProvisionSuccess
	// MetricProvisionRateLimited counts throttled provisioning attempts.
	MetricProvisionRateLimited
	// MetricRequestThrottled counts general API/default limit rejections.
	MetricRequestThrottled
	// MetricStoreFailOpen counts requests permitted despite a counter-store
	// outage.
	MetricStoreFailOpen
	// MetricStoreFailClosed counts logins rejected because the account
	// store was unreachable.
	MetricStoreFailClosed
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// Metrics holds cache-line-padded atomic counters. All operations are no-ops
// on a nil or disabled receiver, so engine code never branches on the
// feature flag.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// NewMetrics creates a counter set. When cfg.Enabled is false all writes
// are dropped.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies every counter at once.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	if m == nil || !m.enabled {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
