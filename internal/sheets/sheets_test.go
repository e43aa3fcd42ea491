package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"askgive/internal"
	"askgive/internal/config"
	"askgive/internal/pipeline"
	"askgive/internal/storage"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func testClient(rt roundTripFunc) *Client {
	c := NewClient(config.Config{SheetsRateLimitRPS: 1000, SheetsTimeoutMs: 1000}, zap.NewNop())
	c.httpClient = &http.Client{Transport: rt}
	return c
}

func TestParseSheetID(t *testing.T) {
	id, err := ParseSheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9xYz/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9xYz", id)

	_, err = ParseSheetID("https://example.com/sheet")
	assert.ErrorIs(t, err, ErrInvalidSheetURL)

	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc/export?format=csv", CSVExportURL("abc"))
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc/pubhtml", HTMLExportURL("abc"))
}

func TestFetchCSVWithRetry(t *testing.T) {
	attempt := 0
	client := testClient(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/spreadsheets/d/abc/export", r.URL.Path)
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		attempt++
		if attempt == 1 {
			return textResponse(http.StatusServiceUnavailable, "busy"), nil
		}
		return textResponse(http.StatusOK, "a,b\n"), nil
	})

	body, err := client.FetchCSV(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(body))
	assert.Equal(t, 2, attempt)
}

func TestFetchNotPublished(t *testing.T) {
	attempt := 0
	client := testClient(func(*http.Request) (*http.Response, error) {
		attempt++
		return textResponse(http.StatusUnauthorized, "login"), nil
	})

	_, err := client.FetchHTML(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "published to the web")
	assert.Equal(t, 1, attempt)
}

func TestFetchHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := testClient(func(*http.Request) (*http.Response, error) {
		t.Fatal("request should not be sent")
		return nil, nil
	})
	_, err := client.FetchCSV(ctx, "abc")
	assert.ErrorIs(t, err, context.Canceled)
}

const publishedHTML = `<html><body>
<ul id="sheet-menu"><li>Week 1</li></ul>
<table class="waffle"><thead><tr><th></th><th>A</th></tr></thead><tbody>
<tr><th>1</th><td></td><td></td><td>Give</td></tr>
<tr><th>2</th><td>#</td><td>Member</td><td>Person</td></tr>
<tr><th>3</th><td>1</td><td>Sarah Jenkins</td><td>Alice</td><td>CFO</td><td>Acme</td></tr>
</tbody></table></body></html>`

func newSyncFixture(t *testing.T, rt roundTripFunc, api WorkbookReader) (*SyncService, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{MatchMinScore: 0.35, MatchMaxResults: 10}
	proc := pipeline.NewProcessingService(db, cfg, nil, zap.NewNop())
	return NewSyncService(db, testClient(rt), api, proc, zap.NewNop()), db
}

func TestSyncPublishedHTML(t *testing.T) {
	svc, db := newSyncFixture(t, func(r *http.Request) (*http.Response, error) {
		if strings.HasSuffix(r.URL.Path, "/pubhtml") {
			return textResponse(http.StatusOK, publishedHTML), nil
		}
		t.Fatalf("unexpected request %s", r.URL)
		return nil, nil
	}, nil)

	res, err := svc.Sync(context.Background(), "https://docs.google.com/spreadsheets/d/sheet123/edit", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, "sheet123", res.SheetID)
	assert.Equal(t, "html", res.Via)
	require.Len(t, res.Import.Members, 1)
	assert.Equal(t, []string{"Alice, CFO, at Acme"}, res.Import.Members[0].Gives)

	last, err := svc.LastSync()
	require.NoError(t, err)
	assert.NotEmpty(t, last)

	members, err := db.ListMembers()
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestSyncFallsBackToCSV(t *testing.T) {
	csv := ",,Give\n#,Member,Person\n1,Raj Mehta,Priya\n"
	svc, _ := newSyncFixture(t, func(r *http.Request) (*http.Response, error) {
		if strings.HasSuffix(r.URL.Path, "/pubhtml") {
			return textResponse(http.StatusNotFound, "nope"), nil
		}
		return textResponse(http.StatusOK, csv), nil
	}, nil)

	res, err := svc.Sync(context.Background(), "https://docs.google.com/spreadsheets/d/sheet123/edit", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, "csv", res.Via)
	require.Len(t, res.Import.Members, 1)
	assert.Equal(t, "Raj Mehta", res.Import.Members[0].Name)
}

func TestSyncUnpublishedSheet(t *testing.T) {
	svc, _ := newSyncFixture(t, func(*http.Request) (*http.Response, error) {
		return textResponse(http.StatusUnauthorized, "login"), nil
	}, nil)

	_, err := svc.Sync(context.Background(), "https://docs.google.com/spreadsheets/d/sheet123/edit", SyncOptions{})
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "published to the web")
}

type staticReader struct {
	wb *internal.Workbook
}

func (s staticReader) ReadWorkbook(context.Context, string) (*internal.Workbook, error) {
	return s.wb, nil
}

func TestSyncPrefersAPIReader(t *testing.T) {
	wb := &internal.Workbook{Sheets: []internal.Sheet{{Name: "Week 1", Rows: [][]any{
		{nil}, {nil}, {1.0, "Dev Shah", "Meera"},
	}}}}
	svc, _ := newSyncFixture(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("public export should not be fetched")
		return nil, nil
	}, staticReader{wb: wb})

	res, err := svc.Sync(context.Background(), "https://docs.google.com/spreadsheets/d/sheet123/edit", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, "api", res.Via)
	assert.Equal(t, "Dev Shah", res.Import.Members[0].Name)

	_, err = svc.Sync(context.Background(), "not a sheet", SyncOptions{})
	assert.ErrorIs(t, err, ErrInvalidSheetURL)
}

func TestAPIReaderReadsTypedTabs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/values:batchGet"):
			assert.Equal(t, []string{"'Week 1'", "'Raj''s tab'"}, r.URL.Query()["ranges"])
			assert.Equal(t, "UNFORMATTED_VALUE", r.URL.Query().Get("valueRenderOption"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"spreadsheetId": "abc",
				"valueRanges": []map[string]any{
					{"range": "'Week 1'!A1:C3", "values": [][]any{{"", "Member"}, {1, "Sarah", true}}},
					{"range": "'Raj''s tab'!A1:A1", "values": [][]any{{"x"}}},
				},
			})
		case strings.HasSuffix(r.URL.Path, "/spreadsheets/abc"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"sheets": []map[string]any{
					{"properties": map[string]any{"title": "Week 1"}},
					{"properties": map[string]any{"title": "Raj's tab"}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	reader, err := NewAPIReader(context.Background(), config.Config{},
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	wb, err := reader.ReadWorkbook(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 2)
	assert.Equal(t, "Week 1", wb.Sheets[0].Name)
	assert.Equal(t, []any{nil, "Member"}, wb.Sheets[0].Rows[0])
	assert.Equal(t, []any{1.0, "Sarah", true}, wb.Sheets[0].Rows[1])
	assert.Equal(t, "Raj's tab", wb.Sheets[1].Name)
}

func TestNewAPIReaderWithoutCredentials(t *testing.T) {
	_, err := NewAPIReader(context.Background(), config.Config{})
	assert.ErrorIs(t, err, ErrAPINotConfigured)
}
