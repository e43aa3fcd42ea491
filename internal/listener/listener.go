package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"askgive/internal/config"
	"askgive/internal/connectors"
	gmailconnector "askgive/internal/connectors/gmail"
	imapconnector "askgive/internal/connectors/imap"
	"askgive/internal/pipeline"
	"askgive/internal/sheets"
	"askgive/internal/storage"
)

type ConnectorFactory func(ctx context.Context, provider string) (connectors.MailConnector, error)

type Service struct {
	db        *storage.DB
	cfg       config.Config
	processor *pipeline.ProcessingService
	syncer    *sheets.SyncService
	connect   ConnectorFactory
	log       *zap.Logger
}

// NewService builds the polling loop. syncer may be nil when sheet sync is
// not wanted.
func NewService(db *storage.DB, cfg config.Config, processor *pipeline.ProcessingService, syncer *sheets.SyncService, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{db: db, cfg: cfg, processor: processor, syncer: syncer, log: log}
	s.connect = func(ctx context.Context, provider string) (connectors.MailConnector, error) {
		return MakeConnector(ctx, cfg, provider)
	}
	return s
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.ListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	for {
		if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Skipped   int
	Failed    int
	Synced    int
}

func (s *Service) RunCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.ListenerProvider))
	var res CycleResult

	if provider != "" && provider != "none" {
		mailConnector, err := s.connect(ctx, provider)
		if err != nil {
			return err
		}

		fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.log)
		fetchResult, err := fetchService.FetchAndStore(ctx, s.cfg.ListenerLabel, s.cfg.ListenerFetchMax)
		if err != nil {
			return err
		}
		res.Fetched, res.Stored = fetchResult.Fetched, fetchResult.Stored

		pending, err := s.processor.ProcessPending(ctx, s.cfg.ListenerProcessBatch, provider)
		if err != nil {
			return err
		}
		res.Processed, res.Skipped, res.Failed = pending.Processed, pending.Skipped, pending.Failed
	}

	if s.cfg.ListenerSheetSync && s.syncer != nil && strings.TrimSpace(s.cfg.SheetURL) != "" {
		synced, err := s.syncer.Sync(ctx, s.cfg.SheetURL, sheets.SyncOptions{Clean: s.processor.AIEnabled()})
		if err != nil {
			s.log.Warn("sheet sync failed", zap.String("url", s.cfg.SheetURL), zap.Error(err))
		} else {
			res.Synced = len(synced.Import.Members)
		}
	}

	s.log.Info("listener cycle done",
		zap.String("provider", provider),
		zap.Int("fetched", res.Fetched),
		zap.Int("stored", res.Stored),
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Int("synced_members", res.Synced),
	)
	return nil
}

// MakeConnector builds the mail connector for a provider name.
func MakeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case connectors.ProviderGmail:
		return gmailconnector.NewConnector(ctx, cfg)
	case connectors.ProviderIMAP:
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
