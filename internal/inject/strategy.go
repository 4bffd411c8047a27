package inject

import (
	"sort"
	"sync"
	"time"
)

// CooldownConfig shapes the exponential backoff applied to failing methods.
type CooldownConfig struct {
	Initial time.Duration
	Max     time.Duration
}

// MethodRecord tracks the learned reliability of one (app, method) pair.
type MethodRecord struct {
	Success       int
	Failure       int
	Backoff       time.Duration
	CooldownUntil time.Time
	LastStatus    Status
	LastAttempt   time.Time
}

// score is a smoothed success rate: one phantom success and one phantom
// failure keep unseen methods near 0.5 instead of the extremes.
func (r MethodRecord) score() float64 {
	return float64(r.Success+1) / float64(r.Success+r.Failure+2)
}

type appRecord struct {
	methods  map[Method]*MethodRecord
	lastSeen time.Time
}

// Manager holds per-app method records with an LRU cap on tracked apps.
type Manager struct {
	mu       sync.Mutex
	apps     map[string]*appRecord
	cooldown CooldownConfig
	maxApps  int
	now      func() time.Time
}

func NewManager(cooldown CooldownConfig, maxApps int) *Manager {
	if maxApps <= 0 {
		maxApps = 1
	}
	return &Manager{
		apps:     make(map[string]*appRecord),
		cooldown: cooldown,
		maxApps:  maxApps,
		now:      time.Now,
	}
}

// RecordOutcome updates the record for one attempt. Delivered resets the
// backoff; failed and timed-out attempts double it up to the configured cap.
// Declined and aborted attempts carry no signal about the method itself and
// leave the stats untouched.
func (m *Manager) RecordOutcome(appID string, outcome Outcome) {
	if appID == "" || outcome.Method == "" || outcome.Method == MethodNoop {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record := m.methodRecord(appID, outcome.Method)
	record.LastStatus = outcome.Status
	record.LastAttempt = m.now()

	switch outcome.Status {
	case StatusDelivered:
		record.Success++
		record.Backoff = 0
		record.CooldownUntil = time.Time{}
	case StatusFailed, StatusTimedOut:
		record.Failure++
		if record.Backoff <= 0 {
			record.Backoff = m.cooldown.Initial
		} else {
			record.Backoff *= 2
			if record.Backoff > m.cooldown.Max {
				record.Backoff = m.cooldown.Max
			}
		}
		record.CooldownUntil = m.now().Add(record.Backoff)
	}
}

// InCooldown reports whether a method is currently benched for an app.
func (m *Manager) InCooldown(appID string, method Method) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[appID]
	if !ok {
		return false
	}
	record, ok := app.methods[method]
	if !ok {
		return false
	}
	return m.now().Before(record.CooldownUntil)
}

// Rank orders candidate methods for an app: higher learned score first, the
// baseline order breaking ties. The result is deterministic for equal inputs.
func (m *Manager) Rank(appID string, baseline []Method) []Method {
	m.mu.Lock()
	defer m.mu.Unlock()

	ranked := make([]Method, len(baseline))
	copy(ranked, baseline)

	index := make(map[Method]int, len(baseline))
	for i, method := range baseline {
		index[method] = i
	}

	scores := make(map[Method]float64, len(baseline))
	for _, method := range ranked {
		record := MethodRecord{}
		if app, ok := m.apps[appID]; ok {
			if existing, ok := app.methods[method]; ok {
				record = *existing
			}
		}
		scores[method] = record.score()
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i]], scores[ranked[j]]
		if si != sj {
			return si > sj
		}
		return index[ranked[i]] < index[ranked[j]]
	})

	return ranked
}

// Record returns a copy of the record for inspection, and whether it exists.
func (m *Manager) Record(appID string, method Method) (MethodRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[appID]
	if !ok {
		return MethodRecord{}, false
	}
	record, ok := app.methods[method]
	if !ok {
		return MethodRecord{}, false
	}
	return *record, true
}

// methodRecord fetches or creates a record, evicting the least recently seen
// app beyond the cap. Caller holds m.mu.
func (m *Manager) methodRecord(appID string, method Method) *MethodRecord {
	app, ok := m.apps[appID]
	if !ok {
		if len(m.apps) >= m.maxApps {
			m.evictOldest()
		}
		app = &appRecord{methods: make(map[Method]*MethodRecord)}
		m.apps[appID] = app
	}
	app.lastSeen = m.now()

	record, ok := app.methods[method]
	if !ok {
		record = &MethodRecord{}
		app.methods[method] = record
	}
	return record
}

func (m *Manager) evictOldest() {
	var (
		oldestID   string
		oldestSeen time.Time
		first      = true
	)
	for id, app := range m.apps {
		if first || app.lastSeen.Before(oldestSeen) {
			oldestID = id
			oldestSeen = app.lastSeen
			first = false
		}
	}
	if oldestID != "" {
		delete(m.apps, oldestID)
	}
}

// Snapshot exports all records for persistence.
func (m *Manager) Snapshot() map[string]map[Method]MethodRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]map[Method]MethodRecord, len(m.apps))
	for appID, app := range m.apps {
		methods := make(map[Method]MethodRecord, len(app.methods))
		for method, record := range app.methods {
			methods[method] = *record
		}
		out[appID] = methods
	}
	return out
}

// Restore loads previously persisted records, dropping stale cooldowns.
func (m *Manager) Restore(records map[string]map[Method]MethodRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for appID, methods := range records {
		if len(m.apps) >= m.maxApps {
			break
		}
		app := &appRecord{methods: make(map[Method]*MethodRecord), lastSeen: now}
		for method, record := range methods {
			copied := record
			if !copied.CooldownUntil.After(now) {
				copied.CooldownUntil = time.Time{}
				copied.Backoff = 0
			}
			app.methods[method] = &copied
		}
		m.apps[appID] = app
	}
}
