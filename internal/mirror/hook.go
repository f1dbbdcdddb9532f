package mirror

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Tap is the single entry point the host proxy invokes per intercepted
// request. It wires eligibility, capture and dispatch together and
// guarantees that nothing in the mirroring path can alter, delay or abort
// the primary request.
type Tap struct {
	cfg        atomic.Pointer[Config]
	dispatcher *Dispatcher
}

func NewTap(opts Options, dispatcher *Dispatcher) *Tap {
	t := &Tap{dispatcher: dispatcher}
	t.cfg.Store(Compile(opts))

	return t
}

// OnRequest runs once per intercepted request, before the host forwards it
// to its real destination. All panics stop here.
func (t *Tap) OnRequest(d *Descriptor) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("Recovered panic in mirror hook")
		}
	}()

	cfg := t.cfg.Load()

	// No target, nothing to do: skip the filters as well.
	if cfg.Target == "" {
		return
	}

	if !ShouldMirror(d, cfg) {
		return
	}

	snap := Capture(d, cfg)
	if snap == nil {
		return
	}

	t.dispatcher.Dispatch(snap, cfg.Async)
}

// Reload compiles opts and installs the result atomically. In-flight
// requests finish against the configuration they started with.
func (t *Tap) Reload(opts Options) {
	t.cfg.Store(Compile(opts))
}

// Config returns the currently installed configuration.
func (t *Tap) Config() *Config {
	return t.cfg.Load()
}

// Statuses exposes the dispatcher's per-target delivery counters.
func (t *Tap) Statuses() []*TargetStatus {
	return t.dispatcher.Statuses()
}
