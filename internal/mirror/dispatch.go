package mirror

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

type TargetState string

var (
	StateAlive    TargetState = "alive"
	StateFailing  TargetState = "failing"
	StateRetrying TargetState = "retrying"
	StateUnknown  TargetState = "unknown"
)

// TargetStatus is a point-in-time view of delivery outcomes for one mirror
// target, exposed on the admin endpoint.
type TargetStatus struct {
	URL        string
	State      TargetState
	Delivered  uint64
	Failed     uint64
	Dropped    uint64
	LastStatus int
}

type targetState struct {
	sync.Mutex
	breaker    *gobreaker.CircuitBreaker
	delivered  uint64
	failed     uint64
	dropped    uint64
	lastStatus int
}

type DispatcherSettings struct {
	// Workers and QueueSize bound asynchronous delivery. Overflowing the
	// queue drops the newest pending mirror rather than blocking the
	// primary path.
	Workers   int
	QueueSize int

	// UseBreaker stops hammering a target that keeps failing; while the
	// breaker is open eligible deliveries are counted as dropped.
	UseBreaker bool
	RetryAfter time.Duration
}

// Dispatcher performs the outbound copies. Every failure terminates here:
// nothing it does is ever observed by the primary request path beyond a
// log line.
type Dispatcher struct {
	client   *http.Client
	settings DispatcherSettings
	queue    chan *Snapshot
	targets  cmap.ConcurrentMap[string, *targetState]

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(settings DispatcherSettings) *Dispatcher {
	if settings.Workers < 1 {
		settings.Workers = 1
	}

	if settings.QueueSize < 1 {
		settings.QueueSize = 1
	}

	d := &Dispatcher{
		client:   &http.Client{},
		settings: settings,
		queue:    make(chan *Snapshot, settings.QueueSize),
		targets:  cmap.New[*targetState](),
	}

	d.wg.Add(settings.Workers)

	for i := 0; i < settings.Workers; i++ {
		go d.worker()
	}

	return d
}

// Dispatch delivers snap, inline when async is false, otherwise via the
// worker pool. It never blocks on the network in async mode: when the
// queue is full the snapshot is dropped and the drop logged.
func (d *Dispatcher) Dispatch(snap *Snapshot, async bool) {
	if !async {
		d.send(snap)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(snap, "dispatcher stopped")
		return
	}

	select {
	case d.queue <- snap:
	default:
		d.drop(snap, "queue full")
	}
}

// Statuses lists delivery counters for every target seen since start,
// including targets no longer configured after a reload.
func (d *Dispatcher) Statuses() []*TargetStatus {
	statuses := make([]*TargetStatus, 0, d.targets.Count())

	for url, state := range d.targets.Items() {
		statuses = append(statuses, state.status(url))
	}

	return statuses
}

// Stop drains the queue and waits for in-flight deliveries. Snapshots
// dispatched after Stop are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()

	if !d.closed {
		d.closed = true
		close(d.queue)
	}

	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for snap := range d.queue {
		d.send(snap)
	}
}

func (d *Dispatcher) send(snap *Snapshot) {
	state := d.target(snap.Target)

	if state.breaker == nil {
		d.post(snap, state) //nolint:errcheck
		return
	}

	if _, err := state.breaker.Execute(func() (interface{}, error) {
		return nil, d.post(snap, state)
	}); err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		d.drop(snap, "breaker open")
	}
}

// post performs the single delivery attempt. Any HTTP response counts as
// delivered; the status code is recorded for diagnostics only.
func (d *Dispatcher) post(snap *Snapshot, state *targetState) error {
	ctx, cancel := context.WithTimeout(context.Background(), snap.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, snap.Target, bytes.NewReader(snap.Body))
	if err != nil {
		state.recordFailure()
		log.Warn().Err(err).Str("target", snap.Target).Msg("Mirror POST not sent")

		return err
	}

	for name, value := range snap.Headers {
		req.Header.Set(name, value)
	}

	response, err := d.client.Do(req)
	if err != nil {
		state.recordFailure()
		log.Warn().Err(err).Str("target", snap.Target).Msg("Mirror POST failed")

		return err
	}
	defer response.Body.Close()

	// Drain the body, but discard it, to make sure the connection can be
	// reused.
	io.Copy(io.Discard, response.Body) //nolint:errcheck

	state.recordDelivery(response.StatusCode)
	log.Debug().Str("target", snap.Target).Int("status", response.StatusCode).Msg("Mirrored request")

	return nil
}

func (d *Dispatcher) drop(snap *Snapshot, reason string) {
	d.target(snap.Target).recordDrop()
	log.Warn().Str("target", snap.Target).Str("reason", reason).Msg("Mirror delivery dropped")
}

func (d *Dispatcher) target(url string) *targetState {
	return d.targets.Upsert(url, nil, func(exists bool, current, _ *targetState) *targetState {
		if exists {
			return current
		}

		state := &targetState{}

		if d.settings.UseBreaker {
			state.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        url,
				MaxRequests: 1,
				Interval:    0, // Never clear counts
				Timeout:     d.settings.RetryAfter,
			})
		}

		return state
	})
}

func (s *targetState) recordDelivery(status int) {
	s.Lock()
	defer s.Unlock()

	s.delivered++
	s.lastStatus = status
}

func (s *targetState) recordFailure() {
	s.Lock()
	defer s.Unlock()

	s.failed++
}

func (s *targetState) recordDrop() {
	s.Lock()
	defer s.Unlock()

	s.dropped++
}

func (s *targetState) status(url string) *TargetStatus {
	s.Lock()
	defer s.Unlock()

	state := StateAlive

	if s.breaker != nil {
		switch s.breaker.State() {
		case gobreaker.StateOpen:
			state = StateFailing
		case gobreaker.StateHalfOpen:
			state = StateRetrying
		case gobreaker.StateClosed:
			state = StateAlive
		default:
			state = StateUnknown
		}
	}

	return &TargetStatus{
		URL:        url,
		State:      state,
		Delivered:  s.delivered,
		Failed:     s.failed,
		Dropped:    s.dropped,
		LastStatus: s.lastStatus,
	}
}
