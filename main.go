package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"netgazer/internal/adapter"
	"netgazer/internal/capture"
	"netgazer/internal/capture/live"
	"netgazer/internal/config"
	"netgazer/internal/console"
	"netgazer/internal/engine"
	"netgazer/internal/handlers"
	"netgazer/internal/logging"
	"netgazer/internal/parser"
	"netgazer/internal/tui"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("netgazer failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	var driver capture.Driver = live.Driver{Filter: cfg.Capture.Filter}
	if len(cfg.Capture.Files) > 0 {
		driver = capture.FileDriver{Paths: cfg.Capture.Files}
	}
	dec := parser.Decoder{AcceptSwappedEtherType: cfg.Decoder.AcceptSwappedEtherType}

	reg, err := adapter.Init(driver,
		adapter.WithLogger(logger),
		adapter.WithDecoder(dec),
		adapter.WithSnapLen(cfg.Capture.SnapLen),
	)
	if err != nil {
		return err
	}
	defer adapter.Dispose()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Addr != "" {
		return serve(ctx, cfg.Server.Addr, engine.New(reg, dec, cfg.Capture.SnapLen, logger), logger)
	}
	return capturePrint(ctx, cfg, reg)
}

func serve(ctx context.Context, addr string, eng *engine.Engine, logger *zap.Logger) error {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, eng, logger)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		eng.StopCapture()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("netgazer listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// capturePrint lists adapters, opens the chosen one and prints every frame
// until the stream ends, a capture error occurs or ctx is cancelled.
func capturePrint(ctx context.Context, cfg *config.Config, reg *adapter.Registry) error {
	out := console.NewPrinter(os.Stdout)
	handles := reg.Handles()
	out.Adapters(handles)
	if len(handles) == 0 {
		return nil
	}

	h, err := chooseAdapter(cfg, reg, handles)
	if errors.Is(err, tui.ErrAborted) {
		return nil
	}
	if err != nil {
		return err
	}
	sess, err := reg.Session(h)
	if err != nil {
		return err
	}
	if err := sess.Open(cfg.Capture.Promiscuous, cfg.Capture.Timeout); err != nil {
		return err
	}

	// Dispose unblocks the pending read once a signal arrives.
	go func() {
		<-ctx.Done()
		adapter.Dispose()
	}()

	for {
		f, status, err := sess.NextFrame()
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, parser.ErrTruncatedFrame) {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if err != nil {
			return err
		}
		switch status {
		case adapter.StatusTimeout:
			continue
		case adapter.StatusEndOfStream:
			return nil
		}
		out.Frame(f)
	}
}

func chooseAdapter(cfg *config.Config, reg *adapter.Registry, handles []*adapter.Handle) (*adapter.Handle, error) {
	switch {
	case cfg.Capture.Interface != "":
		return reg.ByName(cfg.Capture.Interface)
	case cfg.Capture.Index >= 0:
		return reg.ByIndex(cfg.Capture.Index)
	case len(handles) == 1:
		return handles[0], nil
	}
	idx, err := tui.Pick(handles, os.Stdin, os.Stdout)
	if err != nil {
		return nil, err
	}
	return reg.ByIndex(idx)
}
