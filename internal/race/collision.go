package race

import (
	"github.com/rs/zerolog"

	"slipstream/internal/physics"
	"slipstream/internal/shared/types"
)

// Impact is a classified collision involving one car.
type Impact struct {
	CarID    string
	OtherID  string // empty for a track boundary
	Severity float64
	Point    types.Vec2
	Normal   types.Vec2
}

// ImpactListener receives impact notifications. Listeners run synchronously
// within the tick, after the solver step and before any rendering read.
type ImpactListener interface {
	OnImpact(Impact)
}

// ImpactListenerFunc adapts a plain function to ImpactListener.
type ImpactListenerFunc func(Impact)

func (f ImpactListenerFunc) OnImpact(i Impact) { f(i) }

// Resolver classifies solver contacts into per-car impacts and fans them out
// to subscribers. It only observes; collision response stays in the solver.
type Resolver struct {
	log       zerolog.Logger
	listeners []ImpactListener
}

// NewResolver creates a resolver with no subscribers.
func NewResolver(log zerolog.Logger) *Resolver {
	return &Resolver{log: log}
}

// Subscribe registers a listener. Listeners are invoked in registration
// order.
func (r *Resolver) Subscribe(l ImpactListener) {
	r.listeners = append(r.listeners, l)
}

// Resolve converts raw contacts into impacts, one per participating car.
// known reports whether a body identifier belongs to a live car; contacts for
// unknown bodies (stale references after a despawn) are dropped silently.
func (r *Resolver) Resolve(contacts []physics.Contact, known func(string) bool) []Impact {
	var impacts []Impact
	for _, c := range contacts {
		for _, id := range [2]string{c.A, c.B} {
			if id == "" {
				continue
			}
			if !known(id) {
				r.log.Debug().Str("body", id).Msg("dropping contact for unknown body")
				continue
			}
			other := c.B
			if id == c.B {
				other = c.A
			}
			imp := Impact{
				CarID:    id,
				OtherID:  other,
				Severity: c.Impulse,
				Point:    c.Point,
				Normal:   c.Normal,
			}
			impacts = append(impacts, imp)
			for _, l := range r.listeners {
				l.OnImpact(imp)
			}
		}
	}
	return impacts
}
