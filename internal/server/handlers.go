package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"

	"askgive/internal"
	"askgive/internal/pipeline"
	"askgive/internal/sheets"
)

type syncRequest struct {
	URL   string `json:"url" validate:"required,url"`
	Clean *bool  `json:"clean"`
}

type importResponse struct {
	ImportID string            `json:"importId"`
	Parsed   int               `json:"parsed"`
	Cleaned  bool              `json:"cleaned"`
	Via      string            `json:"via,omitempty"`
	Members  []internal.Member `json:"members"`
}

type matchesResponse struct {
	Member  internal.Member       `json:"member"`
	Matches []internal.SmartMatch `json:"matches"`
}

type importRowResponse struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Origin      string `json:"origin"`
	Cleaned     bool   `json:"cleaned"`
	MemberCount int    `json:"memberCount"`
	CreatedAt   string `json:"createdAt"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	members, err := s.db.SearchMembers(r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, members)
}

func (s *Server) getMember(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	member, err := s.db.GetMember(ps.ByName("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, member)
}

func (s *Server) getMatches(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	matches, err := s.processor.CachedMatches(r.Context(), id)
	s.respondMatches(w, id, matches, err)
}

func (s *Server) recomputeMatches(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	matches, err := s.processor.Match(r.Context(), id)
	s.respondMatches(w, id, matches, err)
}

func (s *Server) respondMatches(w http.ResponseWriter, id string, matches []internal.SmartMatch, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	member, err := s.db.GetMember(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if matches == nil {
		matches = []internal.SmartMatch{}
	}
	s.writeJSON(w, http.StatusOK, matchesResponse{Member: member, Matches: matches})
}

func (s *Server) uploadRoster(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	clean, err := s.cleanParam(r.URL.Query().Get("clean"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := s.processor.ImportFile(r.Context(), internal.SourceUpload, header.Filename, content, pipeline.ImportOptions{Clean: clean})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toImportResponse(res, ""))
}

func (s *Server) syncRoster(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.syncer == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sheet sync is not configured"})
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return
	}

	clean := s.processor.AIEnabled()
	if req.Clean != nil {
		clean = *req.Clean
	}

	res, err := s.syncer.Sync(r.Context(), req.URL, sheets.SyncOptions{Clean: clean})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toImportResponse(res.Import, res.Via))
}

func (s *Server) exportRoster(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	members, err := s.db.ListMembers()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="roster.xlsx"`)
	if err := pipeline.WriteMembersXLSX(w, members); err != nil {
		s.writeError(w, err)
	}
}

func (s *Server) listImports(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.db.ListImports(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]importRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, importRowResponse(row))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) cleanParam(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return s.processor.AIEnabled(), nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid clean parameter: %q", raw)
	}
	return v, nil
}

func toImportResponse(res pipeline.ImportResult, via string) importResponse {
	members := res.Members
	if members == nil {
		members = []internal.Member{}
	}
	return importResponse{ImportID: res.ImportID, Parsed: res.Parsed, Cleaned: res.Cleaned, Via: via, Members: members}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
