package monitor

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// pollInterval is the fixed cadence at which authoritative auction state is
// refreshed from the node.
const pollInterval = 5 * time.Second

// Poller runs a fixed-cadence refresh loop. A failed poll is reported via
// onError and the loop keeps going; displayed state continues to decay from
// the last known values until the next successful poll.
type Poller struct {
	clock    clockwork.Clock
	interval time.Duration
	poll     func(ctx context.Context) error
	onError  func(error)
}

// NewPoller creates a poller invoking poll every interval.
func NewPoller(clock clockwork.Clock, interval time.Duration, poll func(ctx context.Context) error, onError func(error)) *Poller {
	return &Poller{
		clock:    clock,
		interval: interval,
		poll:     poll,
		onError:  onError,
	}
}

// Run polls once immediately and then on every interval until ctx is
// cancelled. The recurring timer is always stopped on the way out.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("poller shutting down")
			return nil
		case <-ticker.Chan():
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	if err := p.poll(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		if p.onError != nil {
			p.onError(err)
		}
	}
}
