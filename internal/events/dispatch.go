package events

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Publisher delivers a classified event to the subscribers of its channel.
type Publisher interface {
	Publish(ev Event)
}

// Stats counts dispatcher outcomes.
type Stats struct {
	Dispatched   uint64
	Unrecognized uint64
	Malformed    uint64
}

// Dispatcher classifies raw records and publishes each recognized event.
type Dispatcher struct {
	pub    Publisher
	logger *zap.Logger

	dispatched   atomic.Uint64
	unrecognized atomic.Uint64
	malformed    atomic.Uint64
}

func NewDispatcher(pub Publisher, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{pub: pub, logger: logger}
}

// Dispatch classifies r and publishes it. It reports whether a publish happened.
func (d *Dispatcher) Dispatch(r Record) bool {
	ev := Classify(r)
	switch e := ev.(type) {
	case Unrecognized:
		d.unrecognized.Add(1)
		d.logger.Debug("Ignoring unrecognized update", zap.Int("code", e.TypeCode))
		return false
	case Malformed:
		d.malformed.Add(1)
		d.logger.Debug("Dropping malformed update", zap.Int("code", e.TypeCode), zap.Error(e.Err))
		return false
	}
	d.pub.Publish(ev)
	d.dispatched.Add(1)
	return true
}

// DispatchBatch dispatches records in batch order and returns how many were published.
func (d *Dispatcher) DispatchBatch(batch []Record) int {
	n := 0
	for _, r := range batch {
		if d.Dispatch(r) {
			n++
		}
	}
	return n
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched:   d.dispatched.Load(),
		Unrecognized: d.unrecognized.Load(),
		Malformed:    d.malformed.Load(),
	}
}
