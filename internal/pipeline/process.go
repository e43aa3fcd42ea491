package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"askgive/internal"
	"askgive/internal/ai"
	"askgive/internal/config"
	"askgive/internal/reference"
	"askgive/internal/storage"
)

var (
	ErrNoVerifiedMembers = errors.New("no verified members found; make sure the sheet matches the official roster")
	ErrEmptyRoster       = errors.New("no members found in the roster")
)

type ProcessingService struct {
	db      *storage.DB
	cfg     config.Config
	aiOn    bool
	cleaner *ai.Cleaner
	finder  *ai.MatchFinder
	matcher *Matcher
	log     *zap.Logger
}

// NewProcessingService wires the roster pipeline. gen may be nil, in which
// case AI cleaning is unavailable and matching uses the local matcher.
func NewProcessingService(db *storage.DB, cfg config.Config, gen ai.Generator, log *zap.Logger) *ProcessingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProcessingService{
		db:      db,
		cfg:     cfg,
		aiOn:    gen != nil,
		cleaner: ai.NewCleaner(gen, cfg, log),
		finder:  ai.NewMatchFinder(gen, cfg, log),
		matcher: NewMatcher(cfg),
		log:     log,
	}
}

func (s *ProcessingService) AIEnabled() bool {
	return s.aiOn
}

type ImportOptions struct {
	Origin string
	Clean  bool
}

type ImportResult struct {
	ImportID string
	Parsed   int
	Cleaned  bool
	Members  []internal.Member
}

// ImportWorkbook normalizes a roster workbook and replaces the stored roster
// with it. With Clean set the normalized roster goes through the AI cleaner
// and only members found in the reference roster are kept.
func (s *ProcessingService) ImportWorkbook(ctx context.Context, source internal.InputSource, wb *internal.Workbook, opts ImportOptions) (ImportResult, error) {
	start := time.Now()
	members := NormalizeWorkbook(wb)

	if opts.Clean {
		raw := ""
		if len(members) > 0 {
			blob, err := WorkbookText(members)
			if err != nil {
				return ImportResult{}, err
			}
			raw = blob
		} else if wb != nil {
			raw = GridText(wb)
		}
		return s.importCleaned(ctx, source, raw, opts, len(members), start)
	}

	if len(members) == 0 {
		return ImportResult{}, ErrEmptyRoster
	}
	return s.persist(source, opts, members, len(members), false, start)
}

// ImportFile imports an uploaded roster file. PDF rosters have no grid and
// always go through the AI cleaner.
func (s *ProcessingService) ImportFile(ctx context.Context, source internal.InputSource, name string, content []byte, opts ImportOptions) (ImportResult, error) {
	kind, err := KindFromName(name)
	if err != nil {
		return ImportResult{}, err
	}
	if opts.Origin == "" {
		opts.Origin = name
	}

	if kind == KindPDF {
		text, err := ExtractPDFText(content)
		if err != nil {
			return ImportResult{}, fmt.Errorf("%w: read pdf: %w", ErrUnreadableInput, err)
		}
		return s.ImportRawText(ctx, source, text, opts)
	}

	wb, err := ReadWorkbook(kind, content, name)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: read %s: %w", ErrUnreadableInput, kind, err)
	}
	return s.ImportWorkbook(ctx, source, wb, opts)
}

// ImportRawText runs free-form roster text through the AI cleaner and the
// reference roster filter.
func (s *ProcessingService) ImportRawText(ctx context.Context, source internal.InputSource, text string, opts ImportOptions) (ImportResult, error) {
	return s.importCleaned(ctx, source, text, opts, 0, time.Now())
}

func (s *ProcessingService) importCleaned(ctx context.Context, source internal.InputSource, raw string, opts ImportOptions, parsed int, start time.Time) (ImportResult, error) {
	cleaned, err := s.cleaner.Clean(ctx, raw)
	if err != nil {
		return ImportResult{}, fmt.Errorf("clean roster: %w", err)
	}
	if len(cleaned) == 0 {
		return ImportResult{}, ErrEmptyRoster
	}
	if parsed == 0 {
		parsed = len(cleaned)
	}

	idx, err := s.ReferenceIndex()
	if err != nil {
		return ImportResult{}, err
	}
	verified := EnrichMembers(cleaned, idx)
	if len(verified) == 0 {
		s.log.Warn("no verified members",
			zap.String("source", string(source)),
			zap.Int("cleaned", len(cleaned)),
			zap.Int("reference", idx.Len()),
		)
		return ImportResult{}, ErrNoVerifiedMembers
	}
	return s.persist(source, opts, verified, parsed, true, start)
}

func (s *ProcessingService) persist(source internal.InputSource, opts ImportOptions, members []internal.Member, parsed int, cleaned bool, start time.Time) (ImportResult, error) {
	importID := uuid.NewString()
	if err := s.db.ReplaceMembers(importID, members); err != nil {
		return ImportResult{}, err
	}
	if err := s.db.InsertImport(internal.ImportRow{
		ID:          importID,
		Source:      string(source),
		Origin:      opts.Origin,
		Cleaned:     cleaned,
		MemberCount: len(members),
	}); err != nil {
		return ImportResult{}, err
	}
	_ = s.db.InsertRun(storage.Run{
		TraceID:  uuid.NewString(),
		ImportID: importID,
		Timings:  map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
		Counts:   map[string]int{"parsed": parsed, "members": len(members)},
	})

	s.log.Info("roster imported",
		zap.String("import_id", importID),
		zap.String("source", string(source)),
		zap.String("origin", opts.Origin),
		zap.Bool("cleaned", cleaned),
		zap.Int("members", len(members)),
	)
	return ImportResult{ImportID: importID, Parsed: parsed, Cleaned: cleaned, Members: members}, nil
}

// SeedReferenceRoster loads REFERENCE_ROSTER_PATH into an empty reference
// table. A stored reference roster is left alone so reference:import wins.
func (s *ProcessingService) SeedReferenceRoster() (int, error) {
	path := strings.TrimSpace(s.cfg.ReferenceRosterPath)
	if path == "" {
		return 0, nil
	}
	existing, err := s.db.ListReferenceMembers()
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	members, err := reference.LoadFile(path, s.cfg.PhoneCountryCode)
	if err != nil {
		return 0, fmt.Errorf("load reference roster: %w", err)
	}
	if err := s.db.ReplaceReferenceMembers(members); err != nil {
		return 0, err
	}
	s.log.Info("reference roster seeded", zap.String("path", path), zap.Int("members", len(members)))
	return len(members), nil
}

func (s *ProcessingService) ReferenceIndex() (*reference.Index, error) {
	ref, err := s.db.ListReferenceMembers()
	if err != nil {
		return nil, err
	}
	return reference.BuildIndex(ref), nil
}

// Match recomputes the matches for a member. The AI finder is tried first;
// without a key or on failure the local matcher answers.
func (s *ProcessingService) Match(ctx context.Context, memberID string) ([]internal.SmartMatch, error) {
	target, err := s.db.GetMember(memberID)
	if err != nil {
		return nil, err
	}
	members, err := s.db.ListMembers()
	if err != nil {
		return nil, err
	}

	matches, err := s.finder.Find(ctx, target, members)
	if err != nil {
		if !errors.Is(err, ai.ErrNotConfigured) {
			s.log.Warn("ai match failed, using local matcher", zap.String("member_id", memberID), zap.Error(err))
		}
		matches = s.matcher.Match(target, members)
	}

	if err := s.db.ReplaceMatches(memberID, matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// CachedMatches returns the last stored matches of a member, computing them
// when none are stored.
func (s *ProcessingService) CachedMatches(ctx context.Context, memberID string) ([]internal.SmartMatch, error) {
	if _, err := s.db.GetMember(memberID); err != nil {
		return nil, err
	}
	matches, err := s.db.ListMatches(memberID)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		return s.Match(ctx, memberID)
	}
	return matches, nil
}

type ProcessResult struct {
	EmailID  int
	Status   string
	ImportID string
	Members  int
}

type PendingResult struct {
	Processed int
	Skipped   int
	Failed    int
}

func (s *ProcessingService) ProcessMessage(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.db.GetEmail(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (PendingResult, error) {
	pending, err := s.db.ListEmailsByStatus(internal.EmailFetched, limit)
	if err != nil {
		return PendingResult{}, err
	}

	var out PendingResult
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			s.log.Warn("email processing failed", zap.Int("email_id", email.ID), zap.Error(err))
		}
		switch res.Status {
		case internal.EmailProcessed:
			out.Processed++
		case internal.EmailSkipped:
			out.Skipped++
		default:
			out.Failed++
		}
	}
	return out, nil
}

// ProcessEmail imports the roster carried by a stored email, if any.
// Spreadsheet attachments win over PDF text, which needs the AI cleaner.
func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	res := ProcessResult{EmailID: email.ID, Status: internal.EmailFailed}

	fail := func(err error) (ProcessResult, error) {
		_ = s.db.UpdateEmailStatus(email.ID, internal.EmailFailed)
		return res, err
	}

	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return fail(err)
	}
	msg, err := parseRosterEmail(raw)
	if err != nil {
		return fail(err)
	}

	subject := firstNonEmpty(msg.subject, email.Subject)
	detect := DetectRoster(subject, msg.text+"\n"+msg.html, msg.attachmentNames)
	logger := s.log.With(zap.Int("email_id", email.ID), zap.String("subject", subject))

	skip := func(reason string) (ProcessResult, error) {
		logger.Info("email skipped", zap.String("reason", reason), zap.Float64("score", detect.Score))
		res.Status = internal.EmailSkipped
		if err := s.db.UpdateEmailStatus(email.ID, internal.EmailSkipped); err != nil {
			return res, err
		}
		_ = s.db.InsertRun(storage.Run{
			TraceID: uuid.NewString(),
			EmailID: email.ID,
			Timings: map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
			Counts:  map[string]int{"members": 0},
		})
		return res, nil
	}

	if !detect.IsRoster {
		return skip(detect.Reason)
	}

	opts := ImportOptions{Origin: subject, Clean: s.aiOn}
	var imported ImportResult
	switch {
	case len(msg.workbook.Sheets) > 0:
		imported, err = s.ImportWorkbook(ctx, internal.SourceEmail, msg.workbook, opts)
	case strings.TrimSpace(msg.pdfText) != "":
		imported, err = s.ImportRawText(ctx, internal.SourceEmail, msg.pdfText, opts)
	default:
		return skip("no_roster_content")
	}
	if errors.Is(err, ErrNoVerifiedMembers) {
		return skip("no_verified_members")
	}
	if errors.Is(err, ErrEmptyRoster) {
		return skip("empty_roster")
	}
	if err != nil {
		return fail(err)
	}

	if err := s.db.UpdateEmailStatus(email.ID, internal.EmailProcessed); err != nil {
		return res, err
	}
	res.Status = internal.EmailProcessed
	res.ImportID = imported.ImportID
	res.Members = len(imported.Members)
	return res, nil
}

type rosterEmail struct {
	subject         string
	text            string
	html            string
	attachmentNames []string
	workbook        *internal.Workbook
	pdfText         string
}

func parseRosterEmail(raw []byte) (rosterEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return rosterEmail{}, fmt.Errorf("parse email: %w", err)
	}

	out := rosterEmail{
		subject:  env.GetHeader("Subject"),
		text:     env.Text,
		html:     env.HTML,
		workbook: &internal.Workbook{},
	}

	parts := append([]*enmime.Part{}, env.Attachments...)
	parts = append(parts, env.Inlines...)
	var pdfTexts []string
	for _, part := range parts {
		if part.FileName == "" {
			continue
		}
		out.attachmentNames = append(out.attachmentNames, part.FileName)

		kind, err := KindFromName(part.FileName)
		if err != nil {
			continue
		}
		if kind == KindPDF {
			if text, err := ExtractPDFText(part.Content); err == nil {
				pdfTexts = append(pdfTexts, text)
			}
			continue
		}
		wb, err := ReadWorkbook(kind, part.Content, part.FileName)
		if err != nil {
			continue
		}
		out.workbook.Sheets = append(out.workbook.Sheets, wb.Sheets...)
	}

	if len(out.workbook.Sheets) == 0 && strings.Contains(strings.ToLower(env.HTML), "<table") {
		if wb, err := ReadHTML([]byte(env.HTML)); err == nil {
			out.workbook.Sheets = wb.Sheets
		}
	}
	out.pdfText = strings.Join(pdfTexts, "\n")
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
