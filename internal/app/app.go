package app

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"askgive/internal/ai"
	"askgive/internal/config"
	"askgive/internal/logging"
	"askgive/internal/pipeline"
	"askgive/internal/sheets"
	"askgive/internal/storage"
)

// App holds the services shared by the CLI, the HTTP server and the listener.
type App struct {
	Cfg       config.Config
	Log       *zap.Logger
	DB        *storage.DB
	Processor *pipeline.ProcessingService
	Syncer    *sheets.SyncService
}

type Option func(*options)

type options struct {
	gen       ai.Generator
	genSet    bool
	sheetOpts []option.ClientOption
}

// WithGenerator replaces the Gemini generator; nil disables AI.
func WithGenerator(gen ai.Generator) Option {
	return func(o *options) {
		o.gen = gen
		o.genSet = true
	}
}

// WithSheetsOptions passes client options to the Sheets API reader.
func WithSheetsOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.sheetOpts = append(o.sheetOpts, opts...) }
}

// Load reads the environment and builds the App.
func Load(ctx context.Context, opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, log, opts...)
}

// New opens the database, wires the AI, sheets and processing services and
// seeds the reference roster from REFERENCE_ROSTER_PATH when none is stored.
func New(ctx context.Context, cfg config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	gen := o.gen
	if !o.genSet && strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := ai.NewGeminiGenerator(ctx, cfg)
		if err != nil {
			log.Warn("gemini unavailable, continuing without ai", zap.Error(err))
		} else {
			gen = gemini
		}
	}
	processor := pipeline.NewProcessingService(db, cfg, gen, log)

	if _, err := processor.SeedReferenceRoster(); err != nil {
		_ = db.Close()
		return nil, err
	}

	var api sheets.WorkbookReader
	if strings.TrimSpace(cfg.SheetsAPIKey) != "" || cfg.GoogleOAuthConfigured() || len(o.sheetOpts) > 0 {
		reader, err := sheets.NewAPIReader(ctx, cfg, o.sheetOpts...)
		if err != nil {
			log.Warn("sheets api unavailable, using public export", zap.Error(err))
		} else {
			api = reader
		}
	}
	syncer := sheets.NewSyncService(db, sheets.NewClient(cfg, log), api, processor, log)

	return &App{Cfg: cfg, Log: log, DB: db, Processor: processor, Syncer: syncer}, nil
}

// HasSheetsAPI reports whether sheet syncs go through the Sheets API first.
func (a *App) HasSheetsAPI() bool {
	return a.Syncer.UsesAPI()
}

func (a *App) Close() {
	_ = a.Log.Sync()
	_ = a.DB.Close()
}
