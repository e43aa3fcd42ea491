package main

import (
	"context"

	"askgive/internal/app"
)

func newApp(ctx context.Context) (*app.App, error) {
	return app.Load(ctx)
}

// cleanFlag resolves a --clean flag: explicit values win, otherwise cleaning
// follows AI availability.
func cleanFlag(a *app.App, explicit, set bool) bool {
	if set {
		return explicit
	}
	return a.Processor.AIEnabled()
}
