package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const sinkTimeout = 5 * time.Second

// Recorder accepts invocation events without blocking the caller.
type Recorder interface {
	Record(event models.InvocationEvent)
}

// Sink persists or exports events. Sinks run on dispatcher workers.
type Sink interface {
	Name() string
	Write(ctx context.Context, event models.InvocationEvent) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(models.InvocationEvent) {}

// Dispatcher fans events out to sinks on a fixed worker pool. Events are
// dropped when the buffer is full.
type Dispatcher struct {
	sinks    []Sink
	events   chan models.InvocationEvent
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewDispatcher starts poolSize workers reading from a buffer of bufferSize events.
func NewDispatcher(poolSize, bufferSize int, sinks ...Sink) *Dispatcher {
	if poolSize <= 0 {
		poolSize = 1
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	d := &Dispatcher{
		sinks:   sinks,
		events:  make(chan models.InvocationEvent, bufferSize),
		stopped: make(chan struct{}),
	}

	for range poolSize {
		d.wg.Add(1)
		go d.run()
	}

	return d
}

// Record submits an event to the worker pool
func (d *Dispatcher) Record(event models.InvocationEvent) {
	select {
	case <-d.stopped:
		fiberlog.Warnf("[%s] Telemetry dispatcher stopped, dropping event", event.RequestID)
		return
	default:
	}

	select {
	case d.events <- event:
	default:
		fiberlog.Warnf("[%s] Telemetry buffer full, dropping event", event.RequestID)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.events:
			d.dispatch(event)
		case <-d.stopped:
			// Drain what is already buffered.
			for {
				select {
				case event := <-d.events:
					d.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) dispatch(event models.InvocationEvent) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := sink.Write(ctx, event); err != nil {
			fiberlog.Errorf("[%s] Telemetry sink %s failed: %v", event.RequestID, sink.Name(), err)
		}
		cancel()
	}
}

// Stop drains buffered events and stops the workers.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopped)
		d.wg.Wait()
	})
}
