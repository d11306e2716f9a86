package eventlog

import (
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"vidar/internal/domain"
)

const fanoutBufferSize = 1024

// Fanout broadcasts appended events to subscribers from a pump goroutine.
// Append never blocks the matching thread as long as the pump keeps up; if
// the buffer fills, Append drops the event for subscribers and logs it (the
// journal of record should be a Memory log teed in front of the fanout).
type Fanout struct {
	in     chan domain.Event
	subs   []chan domain.Event
	logger zerolog.Logger
}

func NewFanout(logger zerolog.Logger) *Fanout {
	return &Fanout{
		in:     make(chan domain.Event, fanoutBufferSize),
		logger: logger.With().Str("component", "Fanout").Logger(),
	}
}

// Subscribe registers a listener. All subscriptions must be in place before
// Run starts the pump.
func (f *Fanout) Subscribe() <-chan domain.Event {
	ch := make(chan domain.Event, fanoutBufferSize)
	f.subs = append(f.subs, ch)
	return ch
}

func (f *Fanout) Append(event domain.Event) {
	select {
	case f.in <- event:
	default:
		f.logger.Warn().
			Uint64("seq", event.Meta().Seq).
			Str("kind", event.Kind()).
			Msg("fanout buffer full, dropping event for subscribers")
	}
}

// Run pumps events to subscribers until the tomb dies, then closes every
// subscription after draining what is already buffered.
func (f *Fanout) Run(t *tomb.Tomb) error {
	defer func() {
		for {
			select {
			case event := <-f.in:
				f.deliver(event)
			default:
				for _, sub := range f.subs {
					close(sub)
				}
				return
			}
		}
	}()
	for {
		select {
		case <-t.Dying():
			return nil
		case event := <-f.in:
			f.deliver(event)
		}
	}
}

func (f *Fanout) deliver(event domain.Event) {
	for _, sub := range f.subs {
		select {
		case sub <- event:
		default:
			f.logger.Warn().
				Uint64("seq", event.Meta().Seq).
				Msg("subscriber falling behind, dropping event")
		}
	}
}
