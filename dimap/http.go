package dimap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/twbmap/kit"
)

// RegisterHTTP registers JSON endpoints on the chi router. Paths in request
// bodies are resolved on the server's filesystem; the HTTP surface is meant
// for localhost tooling, same trust model as the MCP transport.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Post("/api/mappings/validate", s.handleValidateMapping)
	r.Post("/api/workbooks/validate", s.handleValidateWorkbook)
	r.Post("/api/workbooks/analyze", s.handleAnalyzeWorkbook)
	r.Post("/api/suggest", s.handleSuggest)
	r.Post("/api/remap", s.handleRemap)
	r.Post("/api/extract-toml", s.handleExtractTOML)
}

type pathRequest struct {
	MappingFilePath  string `json:"mapping_file_path,omitempty"`
	WorkbookFilePath string `json:"workbook_file_path,omitempty"`
	TOMLFilePath     string `json:"toml_file_path,omitempty"`
	OutputFilePath   string `json:"output_file_path,omitempty"`
	Section          string `json:"section,omitempty"`
}

func (s *Service) handleValidateMapping(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r)
	if !ok {
		return
	}
	res, err := s.ValidateMappingFile(httpCtx(r), req.MappingFilePath)
	if err != nil {
		// The report carries the detail; still an error status.
		writeJSONStatus(w, statusFor(err), map[string]any{"error": err.Error(), "result": res})
		return
	}
	writeJSON(w, res)
}

func (s *Service) handleValidateWorkbook(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r)
	if !ok {
		return
	}
	res, err := s.ValidateWorkbook(httpCtx(r), req.WorkbookFilePath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Service) handleAnalyzeWorkbook(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r)
	if !ok {
		return
	}
	res, err := s.AnalyzeWorkbook(httpCtx(r), req.WorkbookFilePath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Service) handleSuggest(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r)
	if !ok {
		return
	}
	res, err := s.SuggestMappings(httpCtx(r), req.WorkbookFilePath, req.OutputFilePath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Service) handleRemap(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r)
	if !ok {
		return
	}
	res, err := s.RemapDimensions(httpCtx(r), req.MappingFilePath, req.WorkbookFilePath, req.OutputFilePath)
	if err != nil {
		writeJSONStatus(w, statusFor(err), map[string]any{"error": err.Error(), "result": res})
		return
	}
	writeJSON(w, res)
}

func (s *Service) handleExtractTOML(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r)
	if !ok {
		return
	}
	res, err := s.ExtractTOMLMappings(httpCtx(r), req.TOMLFilePath, req.OutputFilePath, req.Section)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func httpCtx(r *http.Request) context.Context {
	return kit.WithTransport(r.Context(), "http")
}

func decodeBody(w http.ResponseWriter, r *http.Request) (*pathRequest, bool) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONStatus(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrIO):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRenameCollision):
		return http.StatusConflict
	case errors.Is(err, ErrMalformedRow),
		errors.Is(err, ErrDuplicateSource),
		errors.Is(err, ErrMalformedDocument),
		errors.Is(err, ErrUnsupportedWorkbook),
		errors.Is(err, ErrUnknownField):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
