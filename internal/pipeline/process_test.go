package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"askgive/internal"
	"askgive/internal/ai"
	"askgive/internal/config"
	"askgive/internal/storage"
)

type stubGenerator func(req ai.Request) (ai.Response, error)

func (f stubGenerator) Generate(_ context.Context, req ai.Request) (ai.Response, error) {
	return f(req)
}

func testConfig() config.Config {
	return config.Config{
		AICleanMaxChars: 30000,
		AIMatchMinScore: 60,
		MatchMinScore:   0.35,
		MatchMaxResults: 10,
	}
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleWorkbook() *internal.Workbook {
	return &internal.Workbook{Sheets: []internal.Sheet{
		rosterSheet("Week 1",
			[]any{1.0, "Sarah Jenkins", "Alice", "CFO", "Acme", nil, "Architect", "BuildCo"},
			[]any{2.0, "Raj Mehta", nil, "Architect", "Studio R", "Priya", "CFO", nil},
		),
	}}
}

func TestImportWorkbookWithoutCleaning(t *testing.T) {
	db := openDB(t)
	svc := NewProcessingService(db, testConfig(), nil, zap.NewNop())

	res, err := svc.ImportWorkbook(context.Background(), internal.SourceUpload, sampleWorkbook(), ImportOptions{Origin: "week1.xlsx"})
	require.NoError(t, err)
	assert.False(t, res.Cleaned)
	assert.Equal(t, 2, res.Parsed)
	assert.NotEmpty(t, res.ImportID)

	members, err := db.ListMembers()
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "sarah-jenkins", members[0].ID)
	assert.Equal(t, internal.DefaultCompany, members[0].Company)

	imports, err := db.ListImports(5)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, "week1.xlsx", imports[0].Origin)
	assert.Equal(t, 2, imports[0].MemberCount)

	_, err = svc.ImportWorkbook(context.Background(), internal.SourceUpload, &internal.Workbook{}, ImportOptions{})
	assert.ErrorIs(t, err, ErrEmptyRoster)
	assert.NotErrorIs(t, err, ErrNoVerifiedMembers)
}

func TestImportWorkbookCleanedAndEnriched(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.ReplaceReferenceMembers([]internal.Member{
		{ID: "sarah-jenkins", Name: "Sarah Jenkins", Company: "Jenkins Design", Specialty: "Interior Design", PhoneNumber: "919876543210", ChapterRole: "President"},
	}))

	var prompt string
	gen := stubGenerator(func(req ai.Request) (ai.Response, error) {
		prompt = req.Prompt
		return ai.Response{Text: `[
			{"name": "Sarah", "gives": ["CFO"], "asks": ["Architect"]},
			{"name": "Raj Mehta", "gives": ["Architect"], "asks": ["CFO"]}
		]`}, nil
	})
	svc := NewProcessingService(db, testConfig(), gen, zap.NewNop())

	res, err := svc.ImportWorkbook(context.Background(), internal.SourceUpload, sampleWorkbook(), ImportOptions{Origin: "week1.xlsx", Clean: true})
	require.NoError(t, err)
	assert.True(t, res.Cleaned)
	assert.Contains(t, prompt, `"name":"Sarah Jenkins"`)

	require.Len(t, res.Members, 1)
	m := res.Members[0]
	assert.Equal(t, "ai-clean-0", m.ID)
	assert.Equal(t, "Sarah", m.Name)
	assert.Equal(t, "Jenkins Design", m.Company)
	assert.Equal(t, "Interior Design", m.Specialty)
	assert.Equal(t, "919876543210", m.PhoneNumber)
	assert.Equal(t, "President", m.ChapterRole)
	assert.Equal(t, []string{"CFO"}, m.Gives)

	stored, err := db.ListMembers()
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSeededReferenceRosterVerifiesCleanedImport(t *testing.T) {
	db := openDB(t)
	path := filepath.Join(t.TempDir(), "reference.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- name: Sarah Jenkins
  company: Jenkins Design
  specialty: Interior Design
  phone: "98765 43210"
`), 0o644))

	cfg := testConfig()
	cfg.ReferenceRosterPath = path
	cfg.PhoneCountryCode = "91"
	gen := stubGenerator(func(ai.Request) (ai.Response, error) {
		return ai.Response{Text: `[{"name": "Sarah", "gives": ["CFO"], "asks": []}]`}, nil
	})
	svc := NewProcessingService(db, cfg, gen, zap.NewNop())

	seeded, err := svc.SeedReferenceRoster()
	require.NoError(t, err)
	assert.Equal(t, 1, seeded)

	res, err := svc.ImportWorkbook(context.Background(), internal.SourceUpload, sampleWorkbook(), ImportOptions{Clean: svc.AIEnabled()})
	require.NoError(t, err)
	require.Len(t, res.Members, 1)
	assert.Equal(t, "Jenkins Design", res.Members[0].Company)
	assert.Equal(t, "919876543210", res.Members[0].PhoneNumber)

	require.NoError(t, db.ReplaceReferenceMembers([]internal.Member{{ID: "other", Name: "Other"}}))
	seeded, err = svc.SeedReferenceRoster()
	require.NoError(t, err)
	assert.Zero(t, seeded)
	ref, err := db.ListReferenceMembers()
	require.NoError(t, err)
	require.Len(t, ref, 1)
	assert.Equal(t, "Other", ref[0].Name)

	cfg.ReferenceRosterPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewProcessingService(openDB(t), cfg, nil, zap.NewNop()).SeedReferenceRoster()
	assert.Error(t, err)
}

func TestImportRejectsUnverifiedRoster(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.ReplaceMembers("", []internal.Member{{ID: "keep", Name: "Keep Me"}}))
	require.NoError(t, db.ReplaceReferenceMembers([]internal.Member{{ID: "x", Name: "Someone Else", Company: "C", Specialty: "S"}}))

	gen := stubGenerator(func(ai.Request) (ai.Response, error) {
		return ai.Response{Text: `[{"name": "Stranger", "gives": [], "asks": []}]`}, nil
	})
	svc := NewProcessingService(db, testConfig(), gen, zap.NewNop())

	_, err := svc.ImportRawText(context.Background(), internal.SourceSheetSync, "Stranger,,Builder", ImportOptions{})
	assert.ErrorIs(t, err, ErrNoVerifiedMembers)

	stored, err := db.ListMembers()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "keep", stored[0].ID)
}

func TestImportRawTextRequiresAI(t *testing.T) {
	svc := NewProcessingService(openDB(t), testConfig(), nil, zap.NewNop())
	_, err := svc.ImportRawText(context.Background(), internal.SourceSheetSync, "anything", ImportOptions{})
	assert.ErrorIs(t, err, ai.ErrNotConfigured)
}

func TestMatchFallsBackToLocalMatcher(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.ReplaceMembers("", []internal.Member{
		{ID: "sarah", Name: "Sarah", Asks: []string{"Architect"}},
		{ID: "raj", Name: "Raj", Gives: []string{"Architect"}},
	}))

	failing := stubGenerator(func(ai.Request) (ai.Response, error) { return ai.Response{}, errors.New("quota exceeded") })
	for name, gen := range map[string]ai.Generator{"no key": nil, "ai error": failing} {
		t.Run(name, func(t *testing.T) {
			svc := NewProcessingService(db, testConfig(), gen, zap.NewNop())
			matches, err := svc.Match(context.Background(), "sarah")
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, "Raj", matches[0].Member)
			assert.Equal(t, internal.MatchSourceLocal, matches[0].Source)

			cached, err := svc.CachedMatches(context.Background(), "sarah")
			require.NoError(t, err)
			assert.Equal(t, matches, cached)
		})
	}

	_, err := NewProcessingService(db, testConfig(), nil, zap.NewNop()).Match(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMatchUsesAI(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.ReplaceMembers("", []internal.Member{
		{ID: "sarah", Name: "Sarah", Asks: []string{"Insurance"}},
		{ID: "raj", Name: "Raj", Gives: []string{"Bharti Axa Life"}},
	}))
	gen := stubGenerator(func(ai.Request) (ai.Response, error) {
		return ai.Response{Text: `[{"member":"Raj","give":"Bharti Axa Life","matchingAsk":"Insurance","score":90,"reason":"insurer"}]`}, nil
	})

	matches, err := NewProcessingService(db, testConfig(), gen, zap.NewNop()).Match(context.Background(), "sarah")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, internal.MatchSourceAI, matches[0].Source)
	assert.Equal(t, 90.0, matches[0].Score)
}

func TestCachedMatchesKeepsEmptyResult(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.ReplaceMembers("", []internal.Member{
		{ID: "sarah", Name: "Sarah", Asks: []string{"Insurance"}},
		{ID: "raj", Name: "Raj", Gives: []string{"Tiles"}},
	}))
	calls := 0
	gen := stubGenerator(func(ai.Request) (ai.Response, error) {
		calls++
		return ai.Response{Text: `[]`}, nil
	})
	svc := NewProcessingService(db, testConfig(), gen, zap.NewNop())

	for i := 0; i < 3; i++ {
		matches, err := svc.CachedMatches(context.Background(), "sarah")
		require.NoError(t, err)
		assert.Empty(t, matches)
	}
	assert.Equal(t, 1, calls)

	_, err := svc.Match(context.Background(), "sarah")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func writeEmail(t *testing.T, dir, subject, text string, attachment []byte, fileName string) string {
	t.Helper()
	b := enmime.Builder().
		From("Chapter Admin", "admin@example.com").
		To("Roster Bot", "roster@example.com").
		Subject(subject).
		Text([]byte(text))
	if attachment != nil {
		b = b.AddAttachment(attachment, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", fileName)
	}
	part, err := b.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, part.Encode(&buf))
	path := filepath.Join(dir, strings.ReplaceAll(subject, " ", "_")+".eml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestProcessPendingEmails(t *testing.T) {
	tmp := t.TempDir()
	db := openDB(t)

	xlsx := mkXLSX(t, map[string][][]any{
		"Week 1": {
			{nil, nil, "Give", nil, nil, "Ask"},
			{"#", "Member", "Person", "Designation", "Company", "Person", "Designation", "Company"},
			{1, "Sarah Jenkins", "Alice", "CFO", "Acme", nil, "Architect", "BuildCo"},
		},
	}, "Week 1")

	rosterPath := writeEmail(t, tmp, "BNI ask give roster", "This week's roster attached.", xlsx, "roster.xlsx")
	otherPath := writeEmail(t, tmp, "Lunch plans", "See you at noon.", nil, "")

	_, err := db.UpsertEmail(internal.EmailRow{Provider: "imap", MessageID: "<r1@x>", Subject: "BNI ask give roster", ReceivedAt: "2026-02-08T00:00:00Z", Hash: "h1", RawRef: rosterPath})
	require.NoError(t, err)
	_, err = db.UpsertEmail(internal.EmailRow{Provider: "imap", MessageID: "<o1@x>", Subject: "Lunch plans", ReceivedAt: "2026-02-09T00:00:00Z", Hash: "h2", RawRef: otherPath})
	require.NoError(t, err)

	svc := NewProcessingService(db, testConfig(), nil, zap.NewNop())
	res, err := svc.ProcessPending(context.Background(), 10, "")
	require.NoError(t, err)
	assert.Equal(t, PendingResult{Processed: 1, Skipped: 1}, res)

	members, err := db.ListMembers()
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, []string{"Alice, CFO, at Acme"}, members[0].Gives)

	roster, err := db.GetEmail("imap", "<r1@x>")
	require.NoError(t, err)
	assert.Equal(t, internal.EmailProcessed, roster.Status)
	other, err := db.GetEmail("imap", "<o1@x>")
	require.NoError(t, err)
	assert.Equal(t, internal.EmailSkipped, other.Status)

	out := filepath.Join(tmp, "out", "members.xlsx")
	require.NoError(t, ExportMembersToXLSX(members, out))
	_, err = os.Stat(out)
	require.NoError(t, err)
}

func TestProcessEmailMissingRawFile(t *testing.T) {
	db := openDB(t)
	email, err := db.UpsertEmail(internal.EmailRow{Provider: "gmail", MessageID: "<gone@x>", Hash: "h", RawRef: filepath.Join(t.TempDir(), "gone.eml")})
	require.NoError(t, err)

	res, err := NewProcessingService(db, testConfig(), nil, zap.NewNop()).ProcessEmail(context.Background(), email)
	assert.Error(t, err)
	assert.Equal(t, internal.EmailFailed, res.Status)

	stored, err := db.GetEmailByID(email.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.EmailFailed, stored.Status)
}

func TestImportFileDispatchesByExtension(t *testing.T) {
	db := openDB(t)
	svc := NewProcessingService(db, testConfig(), nil, zap.NewNop())

	csv := []byte(",,Give\n#,Member,Person,Designation,Company\n1,Raj Mehta,Priya,Director,Infra Ltd\n")
	res, err := svc.ImportFile(context.Background(), internal.SourceCLI, "week2.csv", csv, ImportOptions{})
	require.NoError(t, err)
	require.Len(t, res.Members, 1)
	assert.Equal(t, []string{"Priya, Director, at Infra Ltd"}, res.Members[0].Gives)

	imports, err := db.ListImports(1)
	require.NoError(t, err)
	assert.Equal(t, "week2.csv", imports[0].Origin)

	_, err = svc.ImportFile(context.Background(), internal.SourceCLI, "notes.txt", []byte("x"), ImportOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedInput)

	_, err = svc.ImportFile(context.Background(), internal.SourceCLI, "broken.xlsx", []byte("not a zip"), ImportOptions{})
	assert.ErrorIs(t, err, ErrUnreadableInput)
}
