// Package progress implements the fan-out progress sink described in the
// design notes: operations report through a single Sink interface, and a
// Multi sink forwards every call to any number of attached sinks so a CLI
// and a test harness can observe the same run.
package progress

// Sink receives progress notifications from a long-running operation
// (catalog sync, install batch, upload batch). Implementations must be
// cheap and non-blocking; a Sink that needs to do I/O should buffer.
type Sink interface {
	SetTitle(title string)
	SetCount(done, total int)
	AddItem(item string)
	SetItemCount(item string, done, total int64)
	ItemDone(item string)
	Done()
}

// Multi fans a single stream of calls out to any number of attached sinks.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink wrapping the given sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Attach adds another sink to the fan-out set.
func (m *Multi) Attach(s Sink) { m.sinks = append(m.sinks, s) }

func (m *Multi) SetTitle(title string) {
	for _, s := range m.sinks {
		s.SetTitle(title)
	}
}

func (m *Multi) SetCount(done, total int) {
	for _, s := range m.sinks {
		s.SetCount(done, total)
	}
}

func (m *Multi) AddItem(item string) {
	for _, s := range m.sinks {
		s.AddItem(item)
	}
}

func (m *Multi) SetItemCount(item string, done, total int64) {
	for _, s := range m.sinks {
		s.SetItemCount(item, done, total)
	}
}

func (m *Multi) ItemDone(item string) {
	for _, s := range m.sinks {
		s.ItemDone(item)
	}
}

func (m *Multi) Done() {
	for _, s := range m.sinks {
		s.Done()
	}
}

// Noop is a Sink that discards every call; the zero value of the core
// operations' options should default to it so callers never need a nil
// check.
type Noop struct{}

func (Noop) SetTitle(string)                       {}
func (Noop) SetCount(int, int)                     {}
func (Noop) AddItem(string)                        {}
func (Noop) SetItemCount(string, int64, int64)     {}
func (Noop) ItemDone(string)                       {}
func (Noop) Done()                                 {}
