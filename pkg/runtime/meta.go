package runtime

import (
	"context"
	"time"
)

// Session is the authenticated connection to one device. Implementations may
// block; the device controller never calls the blocking methods on the
// supervision loop.
type Session interface {
	Login(ctx context.Context, user string, password string) error
	Logout(ctx context.Context) error
	// Subscribe registers a standing subscription. onValue is called from the
	// engine's own goroutines until the subscription is cancelled.
	Subscribe(tag string, profile string, onValue func(Value)) (Subscription, error)
	Read(ctx context.Context, tag string) (Value, error)
	// ConnectionOK must not block.
	ConnectionOK() bool
	TestTimeouts()
}

type Subscription interface {
	Cancel()
}

// Dispatcher moves work off the supervision loop and completions back onto it.
type Dispatcher interface {
	// Go runs work on its own goroutine and posts done(err) onto the loop.
	Go(work func() error, done func(error))
	// Post queues fn onto the loop. Posting after the loop stopped drops fn.
	Post(fn func())
}

type SessionOptions struct {
	// RequestTimeout bounds one-shot reads, enforced by TestTimeouts.
	RequestTimeout time.Duration
}

// NewSession builds an engine for a device address, without connecting.
type NewSession func(address string, opts SessionOptions) (Session, error)
