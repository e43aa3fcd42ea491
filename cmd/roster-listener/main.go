package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"askgive/internal/app"
	"askgive/internal/listener"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Load(ctx)
	must(err)
	defer a.Close()

	a.Log.Info("roster listener starting",
		zap.String("provider", a.Cfg.ListenerProvider),
		zap.Int("interval_sec", a.Cfg.ListenerIntervalSec),
		zap.Bool("sheet_sync", a.Cfg.ListenerSheetSync),
		zap.Bool("sheets_api", a.HasSheetsAPI()),
	)
	svc := listener.NewService(a.DB, a.Cfg, a.Processor, a.Syncer, a.Log)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
