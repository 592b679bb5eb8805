// Package notify delivers renewal reports to the operator. Providers
// produce events, the service layer fans them out to every configured
// channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type Event struct {
	// Provider is the hosting panel the event concerns, e.g. "castlehost".
	Provider string
	// Target identifies the server or account within the provider.
	Target  string
	Status  string
	Subject string
	Message string
	// Screenshot is an optional png of the page at failure time.
	Screenshot []byte
	At         time.Time
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Fanout delivers to every notifier and joins their failures. One broken
// channel must not silence the others.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range f {
		err := n.Notify(ctx, event)
		if err != nil {
			slog.ErrorContext(
				ctx, "notifier failed",
				"notifier", fmt.Sprintf("%T", n),
				"provider", event.Provider,
				"err", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
