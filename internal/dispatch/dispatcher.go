package dispatch

import (
	"context"

	"github.com/chrisdurfee/authgate/internal/models"
)

// Delivery carries everything a channel needs to hand a code to the user.
type Delivery struct {
	Email     string
	Code      string
	ExpiresIn string
}

// Dispatcher delivers a one-time code over a single channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, delivery Delivery) error
}

// Registry maps channel names to their dispatchers. Channels are a closed
// set; registration happens once at startup and the registry is read-only
// afterwards, so no locking is needed.
type Registry struct {
	dispatchers map[string]Dispatcher
}

func NewRegistry() *Registry {
	return &Registry{dispatchers: make(map[string]Dispatcher)}
}

func (r *Registry) Register(channel string, d Dispatcher) {
	r.dispatchers[channel] = d
}

// Dispatcher returns the dispatcher for a channel, or
// ErrCollaboratorUnavailable when the channel has no backend configured.
func (r *Registry) Dispatcher(channel string) (Dispatcher, error) {
	d, ok := r.dispatchers[channel]
	if !ok {
		return nil, models.ErrCollaboratorUnavailable
	}
	return d, nil
}
