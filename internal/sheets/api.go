package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"askgive/internal"
	"askgive/internal/config"
)

var ErrAPINotConfigured = errors.New("sheets api credentials are not configured")

// APIReader reads a spreadsheet through the Sheets API v4. Unlike the public
// exports it keeps every tab and the native type of each cell.
type APIReader struct {
	service *sheetsapi.Service
}

func NewAPIReader(ctx context.Context, cfg config.Config, opts ...option.ClientOption) (*APIReader, error) {
	switch {
	case strings.TrimSpace(cfg.SheetsAPIKey) != "":
		opts = append(opts, option.WithAPIKey(cfg.SheetsAPIKey))
	case cfg.GoogleOAuthConfigured():
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.GmailRedirectURI,
			Scopes:       []string{sheetsapi.SpreadsheetsReadonlyScope},
		}
		tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
		opts = append(opts, option.WithTokenSource(tokenSource))
	case len(opts) == 0:
		return nil, ErrAPINotConfigured
	}

	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &APIReader{service: svc}, nil
}

func (r *APIReader) ReadWorkbook(ctx context.Context, id string) (*internal.Workbook, error) {
	meta, err := r.service.Spreadsheets.Get(id).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets metadata: %w", err)
	}

	titles := make([]string, 0, len(meta.Sheets))
	ranges := make([]string, 0, len(meta.Sheets))
	for _, sh := range meta.Sheets {
		if sh == nil || sh.Properties == nil {
			continue
		}
		titles = append(titles, sh.Properties.Title)
		ranges = append(ranges, quoteSheetTitle(sh.Properties.Title))
	}

	wb := &internal.Workbook{}
	if len(ranges) == 0 {
		return wb, nil
	}

	resp, err := r.service.Spreadsheets.Values.BatchGet(id).
		Ranges(ranges...).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheets values: %w", err)
	}

	for i, vr := range resp.ValueRanges {
		name := fmt.Sprintf("Sheet%d", i+1)
		if i < len(titles) {
			name = titles[i]
		}
		grid := make([][]any, 0, len(vr.Values))
		for _, row := range vr.Values {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = apiCellValue(v)
			}
			grid = append(grid, cells)
		}
		wb.Sheets = append(wb.Sheets, internal.Sheet{Name: name, Rows: grid})
	}
	return wb, nil
}

func quoteSheetTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func apiCellValue(v any) any {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return t
	case float64, bool:
		return t
	case nil:
		return nil
	default:
		return fmt.Sprint(t)
	}
}
