package service

import (
	"context"
	"errors"
	"sync"

	"github.com/unwalled/unwalled/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service defines a service that can be started and stopped. Services are
// single use: once stopped they cannot be started again.
type Service interface {
	// Start is called to start the service, which should run until
	// the context terminates. If the service is already running, Start
	// must report an error.
	Start(context.Context) error

	// Stop stops the service and waits for OnStop to return.
	Stop() error

	// Return true if the service is running
	IsRunning() bool

	// String representation of the service
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the
// BaseService implementation wraps.
type Implementation interface {
	Service

	// Called by the Services Start Method
	OnStart(context.Context) error

	// Called when the service's context is canceled or Stop is called.
	OnStop()
}

// BaseService carries the start/stop bookkeeping for a service. Embed it and
// implement OnStart and OnStop:
//
//	type Sequencer struct {
//		service.BaseService
//		// private fields
//	}
//
//	func NewSequencer(logger log.Logger) *Sequencer {
//		s := &Sequencer{}
//		s.BaseService = *service.NewBaseService(logger, "Sequencer", s)
//		return s
//	}
//
// OnStart is called at most once per successful Start. If it returns an error
// the service is not marked as started. OnStop is called exactly once, either
// from Stop or when the context given to Start is canceled.
type BaseService struct {
	logger log.Logger
	name   string

	mtx     sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}

	// The "subclass" of BaseService
	impl Implementation
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start starts the Service and calls its OnStart method. The service stops
// itself when ctx is canceled.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	switch {
	case bs.stopped:
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		return ErrAlreadyStopped
	case bs.started:
		return ErrAlreadyStarted
	}

	bs.logger.Info("starting service", "service", bs.name, "impl", bs.impl.String())
	if err := bs.impl.OnStart(ctx); err != nil {
		return err
	}
	bs.started = true

	go func() {
		select {
		case <-bs.quit:
		case <-ctx.Done():
			if err := bs.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				bs.logger.Error("stopping service", "err", err, "service", bs.name)
			}
		}
	}()

	return nil
}

// Stop implements Service by calling OnStop and closing the quit channel.
func (bs *BaseService) Stop() error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	switch {
	case bs.stopped:
		return ErrAlreadyStopped
	case !bs.started:
		return ErrNotStarted
	}

	bs.logger.Info("stopping service", "service", bs.name, "impl", bs.impl.String())
	bs.stopped = true
	bs.impl.OnStop()
	close(bs.quit)

	return nil
}

// IsRunning implements Service by returning true or false depending on the
// service's state.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.started && !bs.stopped
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// Quit returns a channel closed when the service stops.
func (bs *BaseService) Quit() <-chan struct{} { return bs.quit }

// String implements Service by returning a string representation of the service.
func (bs *BaseService) String() string { return bs.name }
