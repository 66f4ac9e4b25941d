package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/strataplan/orchestrator/internal/plan"
)

// Event kinds. The union is tagged on the JSON "type" key.
const (
	KindMessage    = "message"    // conversational turn: role + content
	KindStage      = "stage"      // one stage completed: stage name + patch
	KindError      = "error"      // run failed: human-readable message
	KindDiagnostic = "diagnostic" // operator-facing degrade signal, not shown to end users
)

// Event is one line of the streaming protocol.
type Event struct {
	WorkflowID string      `json:"workflow_id,omitempty"`
	Type       string      `json:"type"`
	Role       string      `json:"role,omitempty"`
	Content    string      `json:"content,omitempty"`
	Stage      string      `json:"stage,omitempty"`
	Patch      *plan.Patch `json:"patch,omitempty"`
	Message    string      `json:"message,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Seq        uint64      `json:"seq"`
}

// Marshal returns the event's JSON encoding for SSE data lines and logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Mirror receives a best-effort copy of every published event.
type Mirror interface {
	Append(workflowID string, evt Event)
}

// Manager provides in-memory pub/sub for workflow events with a
// per-workflow ring buffer for replay. Delivery to a subscriber is in
// publish order; slow subscribers drop rather than block the publisher.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
	mirror      Mirror
}

var (
	defaultMgr      *Manager
	once            sync.Once
	defaultCapacity = 256
)

// Get returns the global streaming manager, initializing it lazily.
func Get() *Manager {
	once.Do(func() {
		defaultMgr = NewManager(defaultCapacity)
	})
	return defaultMgr
}

// NewManager builds an isolated manager, mainly for tests.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Configure sets ring capacity for future rings on the global manager.
func Configure(capacity int) {
	if capacity <= 0 {
		return
	}
	defaultCapacity = capacity
	if defaultMgr != nil {
		defaultMgr.mu.Lock()
		defaultMgr.capacity = capacity
		defaultMgr.mu.Unlock()
	}
}

// SetMirror attaches a best-effort event mirror (e.g. Redis Streams).
func (m *Manager) SetMirror(mirror Mirror) {
	m.mu.Lock()
	m.mirror = mirror
	m.mu.Unlock()
}

// Subscribe adds a subscriber channel for a workflowID; the caller must
// drain it and call Unsubscribe.
func (m *Manager) Subscribe(workflowID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[workflowID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[workflowID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(workflowID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[workflowID]; ok {
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, workflowID)
		}
	}
}

// Publish assigns the next sequence number, records the event in the
// replay ring, mirrors it, and fans it out to subscribers (non-blocking).
func (m *Manager) Publish(workflowID string, evt Event) {
	evt.WorkflowID = workflowID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	m.mu.Lock()
	rg := m.history[workflowID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[workflowID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	// Fan out under the lock: sends are non-blocking, and this keeps
	// Unsubscribe from closing a channel mid-delivery.
	for ch := range m.subscribers[workflowID] {
		select {
		case ch <- evt:
		default:
			// Drop if subscriber is slow
		}
	}
	mirror := m.mirror
	m.mu.Unlock()

	if mirror != nil {
		mirror.Append(workflowID, evt)
	}
}

// ReplaySince returns events with Seq > since (best-effort within ring
// capacity), in order.
func (m *Manager) ReplaySince(workflowID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[workflowID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops the replay history for a finished workflow.
func (m *Manager) Forget(workflowID string) {
	m.mu.Lock()
	delete(m.history, workflowID)
	m.mu.Unlock()
}

// ring is a fixed-capacity ring buffer of events.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
