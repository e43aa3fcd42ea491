package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"askgive/internal"
	"askgive/internal/pipeline"
	"askgive/internal/storage"
)

const lastSyncKey = "sheets.last_sync"

var ErrFetchFailed = errors.New("sheet fetch failed")

type WorkbookReader interface {
	ReadWorkbook(ctx context.Context, id string) (*internal.Workbook, error)
}

type SyncOptions struct {
	Clean bool
}

type SyncResult struct {
	SheetID string
	Via     string
	Import  pipeline.ImportResult
}

// SyncService pulls a Google Sheet roster and imports it. The Sheets API is
// used when credentials exist, then the published HTML with all tabs, then
// the CSV export of the first tab.
type SyncService struct {
	db        *storage.DB
	client    *Client
	api       WorkbookReader
	processor *pipeline.ProcessingService
	log       *zap.Logger
}

func NewSyncService(db *storage.DB, client *Client, api WorkbookReader, processor *pipeline.ProcessingService, log *zap.Logger) *SyncService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncService{db: db, client: client, api: api, processor: processor, log: log}
}

// UsesAPI reports whether a Sheets API reader is configured.
func (s *SyncService) UsesAPI() bool {
	return s.api != nil
}

func (s *SyncService) Sync(ctx context.Context, sheetURL string, opts SyncOptions) (SyncResult, error) {
	id, err := ParseSheetID(sheetURL)
	if err != nil {
		return SyncResult{}, err
	}

	wb, via, err := s.fetchWorkbook(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
		return SyncResult{SheetID: id}, err
	}

	res, err := s.processor.ImportWorkbook(ctx, internal.SourceSheetSync, wb, pipeline.ImportOptions{Origin: sheetURL, Clean: opts.Clean})
	if err != nil {
		return SyncResult{SheetID: id, Via: via}, err
	}

	_ = s.db.SetMetadata(lastSyncKey, time.Now().UTC().Format(time.RFC3339))
	s.log.Info("sheet synced", zap.String("sheet_id", id), zap.String("via", via), zap.Int("members", len(res.Members)))
	return SyncResult{SheetID: id, Via: via, Import: res}, nil
}

func (s *SyncService) fetchWorkbook(ctx context.Context, id string) (*internal.Workbook, string, error) {
	if s.api != nil {
		wb, err := s.api.ReadWorkbook(ctx, id)
		if err == nil && len(wb.Sheets) > 0 {
			return wb, "api", nil
		}
		if err != nil {
			s.log.Warn("sheets api read failed, trying public export", zap.String("sheet_id", id), zap.Error(err))
		}
	}

	if blob, err := s.client.FetchHTML(ctx, id); err == nil {
		if wb, err := pipeline.ReadHTML(blob); err == nil && len(wb.Sheets) > 0 {
			return wb, "html", nil
		}
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, "", err
	}

	blob, err := s.client.FetchCSV(ctx, id)
	if err != nil {
		return nil, "", err
	}
	wb, err := pipeline.ReadCSV(blob, "Sheet1")
	if err != nil {
		return nil, "", fmt.Errorf("parse sheet csv: %w", err)
	}
	return wb, "csv", nil
}

func (s *SyncService) LastSync() (string, error) {
	v, err := s.db.GetMetadata(lastSyncKey)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}
