// Package dispatcher runs the bridge's main loop: it reads control events
// from the parent, drives the callback listener and exits with its parent.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kandev/oauthbridge/internal/callback"
	"github.com/kandev/oauthbridge/internal/common/logger"
	"github.com/kandev/oauthbridge/internal/events"
	"github.com/kandev/oauthbridge/internal/wsframe"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrParentGone is returned by Run when the loop ended because the parent
// process exited.
var ErrParentGone = errors.New("parent process is gone")

// Runner is the callback listener as seen by the dispatcher.
type Runner interface {
	Run(ctx context.Context)
}

// Options wires a Dispatcher. Signal and State must be the ones the Listener
// was built with.
type Options struct {
	Codec    wsframe.Codec
	Sender   events.Sender
	Listener Runner
	Signal   *callback.Signal
	State    *callback.State
	Probe    ParentProbe

	// LivenessInterval is how often the watchdog probes the parent while
	// the loop is blocked on a read. Zero leaves only the per-iteration probe.
	LivenessInterval time.Duration
}

// Dispatcher owns the parent connection for the life of the process.
type Dispatcher struct {
	opts   Options
	logger *logger.Logger

	listeners  sync.WaitGroup
	parentGone atomic.Bool
}

// New creates a Dispatcher.
func New(opts Options, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		opts:   opts,
		logger: log.WithComponent("dispatcher"),
	}
}

// Run reads events until the parent sends windowClose, the parent exits, the
// connection fails or ctx is cancelled. On return the shutdown signal is set,
// the connection is closed and any listener run has finished.
//
// A nil error means an orderly windowClose or cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.cleanup()

	loopCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()

	var g errgroup.Group
	g.Go(func() error {
		d.watch(loopCtx)
		return nil
	})
	g.Go(func() error {
		defer stopWatchdog()
		return d.loop(ctx)
	})
	err := g.Wait()

	switch {
	case d.parentGone.Load():
		return ErrParentGone
	case ctx.Err() != nil:
		return nil
	}
	return err
}

func (d *Dispatcher) loop(ctx context.Context) error {
	for {
		if !d.opts.Probe.Alive(ctx) {
			d.parentGone.Store(true)
			return ErrParentGone
		}

		text, err := d.opts.Codec.ReadText()
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		ev, err := events.Parse(text)
		if err != nil {
			return err
		}

		switch ev.Name {
		case events.AuthStart:
			d.startListener(ctx)
		case events.WindowClose:
			d.logger.Info("window closed; shutting down")
			return nil
		default:
			d.logger.Debug("ignoring event", zap.String("event", ev.Name))
		}
	}
}

// watch closes the connection when the parent disappears or ctx ends, which
// unblocks a pending read in loop.
func (d *Dispatcher) watch(ctx context.Context) {
	var tick <-chan time.Time
	if d.opts.LivenessInterval > 0 {
		ticker := time.NewTicker(d.opts.LivenessInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = d.opts.Codec.Close()
			return
		case <-tick:
			if !d.opts.Probe.Alive(ctx) {
				d.logger.Info("parent process exited; closing connection")
				d.parentGone.Store(true)
				_ = d.opts.Codec.Close()
				return
			}
		}
	}
}

func (d *Dispatcher) startListener(ctx context.Context) {
	d.opts.Signal.Clear()

	action, port := d.opts.State.RequestStart()
	switch action {
	case callback.ActionLaunch:
		d.logger.Debug("starting callback listener")
		d.listeners.Add(1)
		go func() {
			defer d.listeners.Done()
			d.opts.Listener.Run(ctx)
		}()
	case callback.ActionAnnounce:
		d.logger.Debug("callback listener already running", zap.Int("port", port))
		d.opts.Sender.Send(events.AuthReady, events.ReadyPayload{Port: port})
	case callback.ActionPending:
		d.logger.Debug("callback listener is starting; it will announce itself")
	}
}

func (d *Dispatcher) cleanup() {
	d.opts.Signal.Set()
	if err := d.opts.Codec.Close(); err != nil {
		d.logger.Debug("close connection", zap.Error(err))
	}
	d.listeners.Wait()
}
