// Package main is the entry point for the oauthbridge binary.
// oauthbridge is spawned by a desktop app's extension host. It reads its launch
// payload from stdin, connects back to the app and relays OAuth redirects that
// land on a short-lived loopback listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kandev/oauthbridge/internal/callback"
	"github.com/kandev/oauthbridge/internal/common/config"
	"github.com/kandev/oauthbridge/internal/common/logger"
	"github.com/kandev/oauthbridge/internal/dispatcher"
	"github.com/kandev/oauthbridge/internal/events"
	"github.com/kandev/oauthbridge/internal/startup"
	"github.com/kandev/oauthbridge/internal/tracing"
	"github.com/kandev/oauthbridge/internal/transport"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "oauthbridge: %v\n", err)
		return 2
	}
	cfg, err := config.LoadWithFlags(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oauthbridge: %v\n", err)
		return 1
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	// Without a usable launch payload there is nobody to report to.
	launch, err := startup.Read(os.Stdin)
	if err != nil {
		log.Debug("no usable startup payload; exiting", zap.Error(err))
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	// Capture the parent before anything slow can orphan us.
	probe := dispatcher.NewParentProbe(log)

	codec, err := transport.Open(ctx, cfg.Bridge.Codec, transport.Options{
		Port:         launch.Port,
		ExtensionID:  launch.ExtensionID,
		ConnectToken: launch.ConnectToken,
		MaxFrameSize: cfg.Bridge.MaxFrameSize,
	}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to parent: %v\n", err)
		return 1
	}

	log.Info("connected to parent",
		zap.Int("port", launch.Port),
		zap.String("extension_id", launch.ExtensionID),
		zap.String("codec", cfg.Bridge.Codec))

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	bridge := events.NewBridge(launch.Token, log)
	bridge.Attach(codec)

	shutdown := callback.NewSignal()
	state := &callback.State{}
	listener := callback.NewListener(cfg.Bridge.CallbackPath, bridge, shutdown, state, log)

	d := dispatcher.New(dispatcher.Options{
		Codec:            codec,
		Sender:           bridge,
		Listener:         listener,
		Signal:           shutdown,
		State:            state,
		Probe:            probe,
		LivenessInterval: cfg.Bridge.LivenessIntervalDuration(),
	}, log)

	err = d.Run(ctx)
	bridge.Attach(nil)
	switch {
	case err == nil:
		log.Info("oauthbridge stopped")
	case errors.Is(err, dispatcher.ErrParentGone):
		log.Info("parent exited; oauthbridge stopped")
	default:
		log.Warn("oauthbridge stopped on connection error", zap.Error(err))
	}
	return 0
}
