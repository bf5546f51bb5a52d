// CLAUDE:SUMMARY Main dimap service — file-level operations over the engine: validate, analyze, suggest, remap, extract.
// Package dimap renames dimension fields inside Tableau workbooks.
//
// It takes a two-column CSV rename table (original,replacement) and a .twb
// workbook, and rewrites every structural location a field name occurs:
// catalog declarations, captions, calculated-field formulas, worksheet
// shelves, filters and sorts. The pipeline:
//
//	mapping CSV → MappingTable; workbook XML → Workbook → ExtractDimensions →
//	(Suggest | Remap) → output bytes
//
// Key properties:
//   - Token-safe renames: [Sales] never touches [SalesTax]
//   - Single-pass from a snapshot: {A→B, B→C} never chains A to C
//   - All-or-nothing: collisions are detected before any mutation and a
//     failed run writes no output file
//   - Idempotent suggestions: a second pass over a remapped workbook
//     proposes nothing
//
// Usage:
//
//	svc := dimap.New(cfg, dimap.WithRunLog(store))
//	svc.RegisterMCP(mcpServer)
//	res, err := svc.RemapDimensions(ctx, "renames.csv", "in.twb", "out.twb")
package dimap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/twbmap/runlog"
)

// Service exposes the engine as file-level operations. Each call parses its
// own inputs; nothing is cached across calls, so concurrent invocations
// never share mutable state.
type Service struct {
	cfg    *Config
	logger *slog.Logger
	runs   runlog.Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithRunLog records every operation to the given run log.
func WithRunLog(r runlog.Recorder) Option {
	return func(s *Service) { s.runs = r }
}

// New creates a Service.
func New(cfg *Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	s := &Service{cfg: cfg, logger: cfg.Logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MappingFileResult is the outcome of validating a mapping CSV.
type MappingFileResult struct {
	Entries  int               `json:"entries"`
	Report   *ValidationReport `json:"report"`
	Mappings []MappingEntry    `json:"mappings,omitempty"`
}

// ValidateMappingFile parses and validates a mapping CSV. The report always
// comes back, also on error, so the caller sees every problem in one pass.
func (s *Service) ValidateMappingFile(ctx context.Context, path string) (*MappingFileResult, error) {
	start := time.Now()
	res, err := s.validateMappingFile(path)
	s.record("validate_mapping_file", path, "", start, err)
	return res, err
}

func (s *Service) validateMappingFile(path string) (*MappingFileResult, error) {
	data, err := s.readFile(path)
	if err != nil {
		return nil, err
	}
	table, report, err := ParseMappingCSV(data, MappingParseOptions{SkipHeader: s.cfg.SkipHeader})
	if err != nil {
		return &MappingFileResult{Report: report}, err
	}
	for _, f := range table.Validate().Findings {
		report.Findings = append(report.Findings, f)
	}
	return &MappingFileResult{
		Entries:  table.Len(),
		Report:   report,
		Mappings: table.Entries(),
	}, nil
}

// WorkbookInfo is the outcome of validating a workbook.
type WorkbookInfo struct {
	Version     string            `json:"version"`
	Datasources int               `json:"datasources"`
	Worksheets  int               `json:"worksheets"`
	Fields      int               `json:"fields"`
	Report      *ValidationReport `json:"report"`
}

// ValidateWorkbook parses a .twb file and cross-checks its reference
// structure against the field catalog.
func (s *Service) ValidateWorkbook(ctx context.Context, path string) (*WorkbookInfo, error) {
	start := time.Now()
	info, err := s.validateWorkbook(path)
	s.record("validate_tableau_workbook", path, "", start, err)
	return info, err
}

func (s *Service) validateWorkbook(path string) (*WorkbookInfo, error) {
	wb, err := s.parseWorkbookFile(path)
	if err != nil {
		return nil, err
	}
	return &WorkbookInfo{
		Version:     wb.Version(),
		Datasources: wb.Datasources(),
		Worksheets:  wb.Worksheets(),
		Fields:      len(wb.Catalog()),
		Report:      wb.Validate(),
	}, nil
}

// FieldSummary is one catalog field plus its reference count across the
// whole document.
type FieldSummary struct {
	FieldDescriptor
	References int `json:"references"`
}

// Analysis is the outcome of analyzing a workbook.
type Analysis struct {
	Path        string         `json:"path"`
	Version     string         `json:"version"`
	Datasources int            `json:"datasources"`
	Worksheets  int            `json:"worksheets"`
	Fields      []FieldSummary `json:"fields"`
	Dimensions  []string       `json:"dimensions"` // rename-eligible field names

	// PrefixGroups collects multiword fields sharing a first word, a cheap
	// signal for naming patterns worth a shared rename ("Customer City",
	// "Customer State", ...). Only groups of two or more are reported.
	PrefixGroups map[string][]string `json:"prefix_groups,omitempty"`
}

// AnalyzeWorkbook parses a workbook and reports its field catalog, the
// reference count per field, and the rename-eligible dimension set.
func (s *Service) AnalyzeWorkbook(ctx context.Context, path string) (*Analysis, error) {
	start := time.Now()
	a, err := s.analyzeWorkbook(path)
	s.record("analyze_workbook", path, "", start, err)
	return a, err
}

func (s *Service) analyzeWorkbook(path string) (*Analysis, error) {
	wb, err := s.parseWorkbookFile(path)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		Path:        path,
		Version:     wb.Version(),
		Datasources: wb.Datasources(),
		Worksheets:  wb.Worksheets(),
		Dimensions:  []string{},
	}
	for _, fd := range wb.Catalog() {
		a.Fields = append(a.Fields, FieldSummary{
			FieldDescriptor: fd,
			References:      len(wb.FindReferences(fd.Name)),
		})
	}
	for _, fd := range ExtractDimensions(wb, ExtractOptions{ExcludeCalculated: s.cfg.ExcludeCalculated}) {
		a.Dimensions = append(a.Dimensions, fd.Name)
	}

	groups := make(map[string][]string)
	for _, fd := range wb.Catalog() {
		words := strings.Fields(fd.Name)
		if len(words) > 1 {
			groups[words[0]] = append(groups[words[0]], fd.Name)
		}
	}
	for prefix, fields := range groups {
		if len(fields) < 2 {
			delete(groups, prefix)
		}
	}
	if len(groups) > 0 {
		a.PrefixGroups = groups
	}
	return a, nil
}

// SuggestResult is the outcome of generating mapping suggestions.
type SuggestResult struct {
	Suggestions int    `json:"suggestions"`
	Output      string `json:"output"`
}

// SuggestMappings extracts the workbook's dimensions, derives normalized
// replacement names, and writes the non-identity pairs as a mapping CSV.
func (s *Service) SuggestMappings(ctx context.Context, workbookPath, outputPath string) (*SuggestResult, error) {
	start := time.Now()
	res, err := s.suggestMappings(workbookPath, outputPath)
	s.record("suggest_mappings", workbookPath, outputPath, start, err)
	return res, err
}

func (s *Service) suggestMappings(workbookPath, outputPath string) (*SuggestResult, error) {
	wb, err := s.parseWorkbookFile(workbookPath)
	if err != nil {
		return nil, err
	}
	candidates := ExtractDimensions(wb, ExtractOptions{ExcludeCalculated: s.cfg.ExcludeCalculated})
	table := Suggest(candidates, SuggestOptions{ReorderNameFields: s.cfg.ReorderNameFields})

	data, err := table.MarshalCSV()
	if err != nil {
		return nil, err
	}
	if err := s.writeFileAtomic(outputPath, data); err != nil {
		return nil, err
	}
	s.logger.Info("suggestions written", "workbook", workbookPath, "output", outputPath, "count", table.Len())
	return &SuggestResult{Suggestions: table.Len(), Output: outputPath}, nil
}

// RemapSummary is the outcome of a remap run.
type RemapSummary struct {
	State        RemapState        `json:"state"`
	Report       *ValidationReport `json:"report"`
	Replacements map[string]int    `json:"replacements"`
	Total        int               `json:"total"`
	Output       string            `json:"output,omitempty"`
}

// RemapDimensions applies a mapping CSV to a workbook and writes the
// rewritten document. On any failure no output file is produced and the
// input workbook is left untouched.
func (s *Service) RemapDimensions(ctx context.Context, mappingPath, workbookPath, outputPath string) (*RemapSummary, error) {
	start := time.Now()
	res, err := s.remapDimensions(mappingPath, workbookPath, outputPath)
	s.record("remap_dimensions", workbookPath, outputPath, start, err)
	return res, err
}

func (s *Service) remapDimensions(mappingPath, workbookPath, outputPath string) (*RemapSummary, error) {
	mapData, err := s.readFile(mappingPath)
	if err != nil {
		return nil, err
	}
	table, report, err := ParseMappingCSV(mapData, MappingParseOptions{SkipHeader: s.cfg.SkipHeader})
	if err != nil {
		return &RemapSummary{State: StateFailed, Report: report}, err
	}

	wb, err := s.parseWorkbookFile(workbookPath)
	if err != nil {
		return nil, err
	}

	res, err := Remap(table, wb, RemapOptions{Strict: s.cfg.Strict})
	summary := &RemapSummary{
		State:        res.State,
		Report:       res.Report,
		Replacements: res.Replacements,
		Total:        res.Total,
	}
	if err != nil {
		s.logger.Warn("remap failed", "workbook", workbookPath, "state", res.State, "error", err)
		return summary, err
	}

	if err := s.writeFileAtomic(outputPath, res.Output); err != nil {
		summary.State = StateFailed
		return summary, err
	}
	summary.Output = outputPath
	s.logger.Info("remap done", "workbook", workbookPath, "output", outputPath, "replacements", res.Total)
	return summary, nil
}

// ExtractResult is the outcome of mining mappings from a TOML file.
type ExtractResult struct {
	Entries int    `json:"entries"`
	Output  string `json:"output"`
}

// ExtractTOMLMappings mines rename pairs from a TOML config file and writes
// them as a mapping CSV. Section is a dotted table path like
// "columns.other_renames"; empty means auto-detect.
func (s *Service) ExtractTOMLMappings(ctx context.Context, tomlPath, outputPath, section string) (*ExtractResult, error) {
	start := time.Now()
	res, err := s.extractTOMLMappings(tomlPath, outputPath, section)
	s.record("extract_toml_mappings", tomlPath, outputPath, start, err)
	return res, err
}

func (s *Service) extractTOMLMappings(tomlPath, outputPath, section string) (*ExtractResult, error) {
	data, err := s.readFile(tomlPath)
	if err != nil {
		return nil, err
	}
	table, err := ExtractTOMLMappings(data, section)
	if err != nil {
		return nil, err
	}
	out, err := table.MarshalCSV()
	if err != nil {
		return nil, err
	}
	if err := s.writeFileAtomic(outputPath, out); err != nil {
		return nil, err
	}
	return &ExtractResult{Entries: table.Len(), Output: outputPath}, nil
}

// WriteFile writes content to a path atomically. Exposed as a tool so a
// calling agent can stage corrected mapping files next to the workbook.
func (s *Service) WriteFile(ctx context.Context, path, content string) error {
	start := time.Now()
	err := s.writeFileAtomic(path, []byte(content))
	s.record("write_file", path, path, start, err)
	return err
}

func (s *Service) parseWorkbookFile(path string) (*Workbook, error) {
	data, err := s.readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseWorkbook(data)
}

func (s *Service) readFile(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if fi.Size() > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrIO, path, fi.Size(), s.cfg.MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return data, nil
}

// writeFileAtomic writes via a temp file in the target directory plus
// rename, so a crashed or failed write never leaves a partial output.
func (s *Service) writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".twbmap-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (s *Service) record(tool, target, output string, start time.Time, err error) {
	if s.runs == nil {
		return
	}
	e := &runlog.Entry{
		Tool:       tool,
		Target:     target,
		Output:     output,
		DurationUs: time.Since(start).Microseconds(),
		Timestamp:  time.Now().UnixMicro(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	s.runs.RecordAsync(e)
}
