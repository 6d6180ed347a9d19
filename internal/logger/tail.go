package logger

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	successKey = "success"

	// DefaultTailSize is how many entries the tail keeps when not configured.
	DefaultTailSize = 100
	// opportunityRingSize bounds the list of recent success entries.
	opportunityRingSize = 50
)

// Kind classifies a log entry for operators.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Entry is one recorded log line.
type Entry struct {
	Time    time.Time              `json:"time"`
	Kind    Kind                   `json:"type"`
	Logger  string                 `json:"logger,omitempty"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Tail keeps the most recent log entries in memory and fans new ones out to subscribers.
type Tail struct {
	mu            sync.RWMutex
	size          int
	entries       []Entry
	opportunities []Entry
	successCount  uint64
	subs          map[uint64]chan Entry
	nextSub       uint64
}

// NewTail creates a tail holding at most size entries.
func NewTail(size int) *Tail {
	if size <= 0 {
		size = DefaultTailSize
	}
	return &Tail{
		size: size,
		subs: make(map[uint64]chan Entry),
	}
}

// Core returns a zapcore.Core that records into the tail.
func (t *Tail) Core(enab zapcore.LevelEnabler) zapcore.Core {
	return &tailCore{LevelEnabler: enab, tail: t}
}

// Last returns up to n entries, newest first.
func (t *Tail) Last(n int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(t.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, t.entries[i])
	}
	return out
}

// Opportunities returns the recent success entries, newest first, and the total seen.
func (t *Tail) Opportunities() ([]Entry, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.opportunities))
	for i := len(t.opportunities) - 1; i >= 0; i-- {
		out = append(out, t.opportunities[i])
	}
	return out, t.successCount
}

// Subscribe registers a listener for new entries. Slow listeners miss entries
// instead of blocking logging. The returned func unsubscribes.
func (t *Tail) Subscribe(buffer int) (<-chan Entry, func()) {
	ch := make(chan Entry, buffer)

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

func (t *Tail) record(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = appendBounded(t.entries, e, t.size)
	if e.Kind == KindSuccess {
		t.successCount++
		t.opportunities = appendBounded(t.opportunities, e, opportunityRingSize)
	}

	for _, ch := range t.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func appendBounded(list []Entry, e Entry, limit int) []Entry {
	list = append(list, e)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

type tailCore struct {
	zapcore.LevelEnabler
	tail   *Tail
	fields []zapcore.Field
}

func (c *tailCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &tailCore{LevelEnabler: c.LevelEnabler, tail: c.tail, fields: merged}
}

func (c *tailCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *tailCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	kind := KindInfo
	if ent.Level >= zapcore.ErrorLevel {
		kind = KindError
	} else if ok, _ := enc.Fields[successKey].(bool); ok {
		kind = KindSuccess
	}
	delete(enc.Fields, successKey)

	e := Entry{
		Time:    ent.Time,
		Kind:    kind,
		Logger:  ent.LoggerName,
		Message: ent.Message,
	}
	if len(enc.Fields) > 0 {
		e.Fields = enc.Fields
	}
	c.tail.record(e)
	return nil
}

func (c *tailCore) Sync() error { return nil }
