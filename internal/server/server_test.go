package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"askgive/internal"
	"askgive/internal/ai"
	"askgive/internal/config"
	"askgive/internal/pipeline"
	"askgive/internal/sheets"
	"askgive/internal/storage"
)

const rosterCSV = `,,Give,,,Ask,,
#,Member,Person,Designation,Company,Person,Designation,Company
1,Sarah Jenkins,Alice,CFO,Acme,,Architect,BuildCo
2,Raj Mehta,,Architect,Studio R,Priya,CFO,
`

type fixture struct {
	db      *storage.DB
	handler http.Handler
}

func newFixture(t *testing.T, syncer *sheets.SyncService) fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{MatchMinScore: 0.1, MatchMaxResults: 10, AIMatchMinScore: 60}
	processor := pipeline.NewProcessingService(db, cfg, nil, zap.NewNop())
	return fixture{db: db, handler: New(db, processor, syncer, zap.NewNop()).Handler()}
}

func (f fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f fixture) upload(t *testing.T, name, content, query string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/roster/upload"+query, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.do(t, req)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUploadThenBrowseMembers(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.upload(t, "week1.csv", rosterCSV, "?clean=false")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var imported importResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imported))
	assert.Equal(t, 2, imported.Parsed)
	assert.False(t, imported.Cleaned)
	require.Len(t, imported.Members, 2)
	assert.Equal(t, []string{"Alice, CFO, at Acme"}, imported.Members[0].Gives)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/members?q=raj", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var found []internal.Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "raj-mehta", found[0].ID)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/members/raj-mehta", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Raj Mehta"`)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var imports []importRowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imports))
	require.Len(t, imports, 1)
	assert.Equal(t, "week1.csv", imports[0].Origin)
	assert.Equal(t, string(internal.SourceUpload), imports[0].Source)
}

func TestUploadErrors(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.upload(t, "notes.txt", "hello", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.upload(t, "week1.csv", rosterCSV, "?clean=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid clean parameter")

	rec = f.upload(t, "empty.csv", "a,b\n", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no members found")

	rec = f.upload(t, "broken.xlsx", "not a zip", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.upload(t, "week1.csv", rosterCSV, "?clean=true")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/roster/upload", strings.NewReader("x"))
	rec = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMissingMember(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/members/nobody", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/members/nobody/matches", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMatchesAreComputedAndCached(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, http.StatusOK, f.upload(t, "week1.csv", rosterCSV, "").Code)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/members/sarah-jenkins/matches", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got matchesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Sarah Jenkins", got.Member.Name)
	for _, m := range got.Matches {
		assert.NotEqual(t, "Sarah Jenkins", m.Member)
		assert.Equal(t, internal.MatchSourceLocal, m.Source)
	}

	stored, err := f.db.ListMatches("sarah-jenkins")
	require.NoError(t, err)
	assert.NotNil(t, stored)

	rec = f.do(t, httptest.NewRequest(http.MethodPost, "/api/members/sarah-jenkins/matches", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportRoster(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, http.StatusOK, f.upload(t, "week1.csv", rosterCSV, "").Code)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/roster/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "roster.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(book.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Sarah Jenkins", rows[1][1])
}

func TestSyncRoster(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/api/roster/sync", strings.NewReader(`{"url":"https://docs.google.com/spreadsheets/d/abc/edit"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	db := f.db
	client := sheets.NewClient(config.Config{SheetsTimeoutMs: 1000}, zap.NewNop())
	processor := pipeline.NewProcessingService(db, config.Config{MatchMinScore: 0.35, MatchMaxResults: 10}, nil, zap.NewNop())
	syncer := sheets.NewSyncService(db, client, nil, processor, zap.NewNop())
	handler := New(db, processor, syncer, zap.NewNop()).Handler()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing url", `{}`, http.StatusBadRequest},
		{"not a url", `{"url":"sheet please"}`, http.StatusBadRequest},
		{"not a sheet", `{"url":"https://example.com/roster"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/roster/sync", strings.NewReader(tc.body)))
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{sheets.ErrInvalidSheetURL, http.StatusBadRequest},
		{fmt.Errorf("%w: read xlsx: zip: not a valid zip file", pipeline.ErrUnreadableInput), http.StatusBadRequest},
		{pipeline.ErrNoVerifiedMembers, http.StatusUnprocessableEntity},
		{pipeline.ErrEmptyRoster, http.StatusUnprocessableEntity},
		{ai.ErrNotConfigured, http.StatusUnprocessableEntity},
		{fmt.Errorf("clean roster: %w: %w", ai.ErrModel, assert.AnError), http.StatusBadGateway},
		{fmt.Errorf("%w: status 500", sheets.ErrFetchFailed), http.StatusBadGateway},
		{errors.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
