// Package callback captures the OAuth redirect on an ephemeral loopback port.
package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kandev/oauthbridge/internal/common/httpmw"
	"github.com/kandev/oauthbridge/internal/common/logger"
	"github.com/kandev/oauthbridge/internal/events"
	"github.com/kandev/oauthbridge/internal/tracing"
	"go.uber.org/zap"
)

const (
	// DefaultPath is the redirect path registered with the OAuth provider.
	DefaultPath = "/callback"

	// shutdownGrace bounds how long in-flight responses may take once the
	// listener is told to stop. It does not bound the wait for the redirect.
	shutdownGrace = 5 * time.Second
)

const successPage = `<html><head><title>Login Successful</title></head>` +
	`<body style='font-family: sans-serif; text-align: center; margin-top: 50px;'>` +
	`<h1>Login Successful</h1><p>You can close this window and return to the app.</p>` +
	`<script>window.close();</script></body></html>`

// Listener serves the redirect endpoint. One Listener value is reused across
// runs; State guarantees that only one run is active at a time.
type Listener struct {
	path    string
	host    string
	emitter events.Sender
	signal  *Signal
	state   *State
	logger  *logger.Logger

	// afterStopping runs between a capture marking the run as stopping and
	// raising the signal. Tests use it to replay a concurrent start request.
	afterStopping func()
}

// NewListener creates a listener that reports through emitter and stops when
// signal is set. An empty path means DefaultPath.
func NewListener(path string, emitter events.Sender, signal *Signal, state *State, log *logger.Logger) *Listener {
	if path == "" {
		path = DefaultPath
	}
	return &Listener{
		path:    path,
		host:    "127.0.0.1",
		emitter: emitter,
		signal:  signal,
		state:   state,
		logger:  log.WithComponent("callback-listener"),
	}
}

// Run serves until the signal is set. The caller must have won
// State.RequestStart with ActionLaunch. If a restart is requested while the
// listener is stopping, Run starts over on a new port.
func (l *Listener) Run(ctx context.Context) {
	for {
		if err := l.runOnce(ctx); err != nil {
			l.emitter.Send(events.AuthError, events.ErrorPayload{Message: err.Error()})
		}
		if !l.state.finish() {
			return
		}
	}
}

func (l *Listener) runOnce(ctx context.Context) (err error) {
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	log := l.logger.WithContext(ctx)

	ctx, span := tracing.TraceCapture(ctx, runID)
	defer func() { tracing.EndWithError(span, err) }()

	// Taken before binding so a redirect served before the select below
	// still wakes this run.
	done, gen := l.signal.Watch()
	select {
	case <-done:
		log.Debug("shutdown already requested; not binding")
		return nil
	default:
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(l.host, "0"))
	if err != nil {
		log.Error("failed to bind callback listener", zap.Error(err))
		return fmt.Errorf("bind callback listener: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	h := &handler{listener: l, log: log, gen: gen, stop: make(chan struct{})}
	srv := &http.Server{
		Handler:     h.router(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	l.state.markListening(port)
	log.Info("callback listener ready", zap.Int("port", port), zap.String("path", l.path))
	l.emitter.Send(events.AuthReady, events.ReadyPayload{Port: port})

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case <-done:
	case <-h.stop:
	case <-ctx.Done():
	case err = <-serveErr:
		l.state.beginStop()
		log.Error("callback listener stopped unexpectedly", zap.Error(err))
		return fmt.Errorf("serve callback listener: %w", err)
	}

	l.state.beginStop()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("callback listener closed with error", zap.Error(err))
	}
	log.Info("callback listener stopped", zap.Int("port", port))
	return nil
}

// handler holds the per-run state of one listener run.
type handler struct {
	listener *Listener
	log      *logger.Logger
	gen      uint64
	captured atomic.Bool
	stop     chan struct{}
}

func (h *handler) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpmw.RequestLogger(h.log, "callback"), httpmw.OtelTracing("callback"))
	r.GET(h.listener.path, h.handleCallback)
	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not found.")
	})
	return r
}

func (h *handler) handleCallback(c *gin.Context) {
	code := c.Query("code")
	providerErr := c.Query("error")

	if code == "" && providerErr == "" {
		c.String(http.StatusBadRequest, "Missing code or error parameter.")
		return
	}
	if !h.captured.CompareAndSwap(false, true) {
		c.String(http.StatusGone, "This login has already completed.")
		return
	}

	c.Header("Connection", "close")
	if code != "" {
		h.listener.emitter.Send(events.AuthCode, events.CodePayload{Code: code})
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(successPage))
		h.log.Info("authorization code captured")
	} else {
		h.listener.emitter.Send(events.AuthError, events.ErrorPayload{Error: providerErr})
		c.String(http.StatusBadRequest, "Login failed.")
		h.log.Info("authorization failed", zap.String("error", providerErr))
	}

	h.listener.state.beginStop()
	close(h.stop)
	if h.listener.afterStopping != nil {
		h.listener.afterStopping()
	}
	if !h.listener.signal.SetFor(h.gen) {
		h.log.Debug("start requested during capture; leaving signal cleared")
	}
}
