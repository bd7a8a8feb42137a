// Package supervise runs the daemon's long-lived loops under a suture
// supervisor, logging its events through zerolog.
package supervise

import (
	"context"
	"errors"
	"sync"

	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/thejerf/suture/v4"
)

// Service forces the use of the String method
type Service interface {
	String() string
	suture.Service
}

// EventHook logs supervisor events.
func EventHook() suture.EventHook {
	log := logger.WithComponent("supervisor")
	return func(ei suture.Event) {
		switch e := ei.(type) {
		case suture.EventStopTimeout:
			log.Warn().
				Str("supervisor", e.SupervisorName).
				Str("service", e.ServiceName).
				Msg("Service failed to terminate in a timely manner")
		case suture.EventServicePanic:
			log.Error().
				Str("supervisor", e.SupervisorName).
				Str("service", e.ServiceName).
				Str("panic", e.PanicMsg).
				Msg("Caught a service panic")
			log.Debug().Msg(e.Stacktrace)
		case suture.EventServiceTerminate:
			log.Error().
				Interface("error", e.Err).
				Str("supervisor", e.SupervisorName).
				Str("service", e.ServiceName).
				Msg("Service failed")
		case suture.EventBackoff:
			log.Debug().Str("supervisor", e.SupervisorName).Msg("Too many service failures, entering the backoff state")
		case suture.EventResume:
			log.Debug().Str("supervisor", e.SupervisorName).Msg("Exiting backoff state")
		default:
			log.Warn().Int("type", int(e.Type())).Msg("Unknown suture supervisor event type")
		}
	}
}

// Fatal marks err as unrecoverable: the whole tree stops instead of
// restarting the service, and Tree.Serve returns err.
func Fatal(err error) error {
	return errors.Join(err, suture.ErrTerminateSupervisorTree)
}

// Tree is a root supervisor that remembers the first fatal error.
type Tree struct {
	sup *suture.Supervisor

	mu    sync.Mutex
	fatal error
}

// NewTree creates a root supervisor named name.
func NewTree(name string) *Tree {
	return &Tree{
		sup: suture.New(name, suture.Spec{
			EventHook: EventHook(),
		}),
	}
}

// Add registers service with the tree.
func (t *Tree) Add(service Service) suture.ServiceToken {
	return t.sup.Add(sanitizeService{Service: service, tree: t})
}

// Serve runs the tree until ctx is done or a service fails fatally. It
// returns nil on cancellation and the service's error on a fatal failure.
func (t *Tree) Serve(ctx context.Context) error {
	err := t.sup.Serve(ctx)

	t.mu.Lock()
	fatal := t.fatal
	t.mu.Unlock()
	if fatal != nil {
		return fatal
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (t *Tree) recordFatal(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fatal == nil {
		t.fatal = err
	}
}

type sanitizeService struct {
	Service
	tree *Tree
}

func (s sanitizeService) Serve(ctx context.Context) error {
	err := SanitizeError(ctx, s.Service.Serve(ctx))
	if errors.Is(err, suture.ErrTerminateSupervisorTree) {
		s.tree.recordFatal(err)
	}
	return err
}

// SanitizeError prevents the error from being interpreted as a context error unless it
// really is a context error because suture kills the service when it sees a context error.
func SanitizeError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}

	var newErrs [3]error

	if errors.Is(err, suture.ErrDoNotRestart) {
		newErrs[0] = suture.ErrDoNotRestart
	}

	if errors.Is(err, suture.ErrTerminateSupervisorTree) {
		newErrs[1] = suture.ErrTerminateSupervisorTree
	}

	newErrs[2] = errors.New(err.Error())

	return errors.Join(newErrs[:]...)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func NewServiceFunc(name string, fn func(ctx context.Context) error) ServiceFunc {
	return ServiceFunc{
		name: name,
		fn:   fn,
	}
}

func (s ServiceFunc) String() string {
	return s.name
}

func (s ServiceFunc) Serve(ctx context.Context) error {
	return s.fn(ctx)
}
