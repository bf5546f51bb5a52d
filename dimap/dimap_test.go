package dimap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testService(cfg *Config) *Service {
	return New(cfg)
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestService_ValidateMappingFile(t *testing.T) {
	svc := testService(nil)
	path := writeTemp(t, "map.csv", "a,b\nc,d\n")

	res, err := svc.ValidateMappingFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Entries != 2 || !res.Report.OK() {
		t.Errorf("result: %+v", res)
	}
}

func TestService_ValidateMappingFile_ReportsAllProblems(t *testing.T) {
	svc := testService(nil)
	path := writeTemp(t, "map.csv", "only_one_column\na,\ngood,row\n")

	res, err := svc.ValidateMappingFile(context.Background(), path)
	if !errors.Is(err, ErrMalformedRow) {
		t.Fatalf("expected ErrMalformedRow, got %v", err)
	}
	// Both bad rows are reported, not just the first.
	if res.Report.Errors() != 2 {
		t.Errorf("errors: %d, findings: %+v", res.Report.Errors(), res.Report.Findings)
	}
}

func TestService_ValidateWorkbook(t *testing.T) {
	svc := testService(nil)
	path := writeTemp(t, "wb.twb", sampleWorkbook)

	info, err := svc.ValidateWorkbook(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Version != "18.1" || info.Fields != 5 || info.Datasources != 1 || info.Worksheets != 1 {
		t.Errorf("info: %+v", info)
	}
}

func TestService_AnalyzeWorkbook(t *testing.T) {
	svc := testService(nil)
	path := writeTemp(t, "wb.twb", sampleWorkbook)

	a, err := svc.AnalyzeWorkbook(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Fields) != 5 {
		t.Fatalf("fields: %d", len(a.Fields))
	}
	// Calculated fields are rename candidates by default.
	if len(a.Dimensions) != 4 {
		t.Errorf("dimensions: %v", a.Dimensions)
	}
	for _, f := range a.Fields {
		if f.Name == "First name" && f.References != 4 {
			t.Errorf("First name references: %d", f.References)
		}
	}
}

func TestService_AnalyzeWorkbook_PrefixGroups(t *testing.T) {
	doc := `<workbook version='18.1'>
  <datasources>
    <datasource name='ds'>
      <column name='[Customer City]' role='dimension' type='nominal' />
      <column name='[Customer State]' role='dimension' type='nominal' />
      <column name='[Order Date]' role='dimension' type='nominal' />
    </datasource>
  </datasources>
  <worksheets><worksheet name='s' /></worksheets>
</workbook>`
	svc := testService(nil)
	path := writeTemp(t, "wb.twb", doc)

	a, err := svc.AnalyzeWorkbook(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	group, ok := a.PrefixGroups["Customer"]
	if !ok || len(group) != 2 {
		t.Errorf("prefix groups: %v", a.PrefixGroups)
	}
	// Singleton prefixes are not reported.
	if _, ok := a.PrefixGroups["Order"]; ok {
		t.Errorf("singleton prefix reported: %v", a.PrefixGroups)
	}
}

func TestService_SuggestMappings(t *testing.T) {
	cfg := &Config{ReorderNameFields: true}
	svc := testService(cfg)
	wbPath := writeTemp(t, "wb.twb", sampleWorkbook)
	outPath := filepath.Join(t.TempDir(), "suggestions.csv")

	res, err := svc.SuggestMappings(context.Background(), wbPath, outPath)
	if err != nil {
		t.Fatal(err)
	}
	if res.Suggestions != 3 {
		t.Errorf("suggestions: %d", res.Suggestions)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	table, _, err := ParseMappingCSV(data, MappingParseOptions{})
	if err != nil {
		t.Fatal(err)
	}
	repl, _ := table.Replacement("First name")
	if repl != "name First" {
		t.Errorf("replacement: %q", repl)
	}
}

func TestService_RemapDimensions_EndToEnd(t *testing.T) {
	svc := testService(nil)
	mapPath := writeTemp(t, "map.csv", "First name,name First\nLast name,name Last\n")
	wbPath := writeTemp(t, "wb.twb", sampleWorkbook)
	outPath := filepath.Join(t.TempDir(), "out.twb")

	res, err := svc.RemapDimensions(context.Background(), mapPath, wbPath, outPath)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateDone || res.Output != outPath {
		t.Errorf("result: %+v", res)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ParseWorkbook(data)
	if err != nil {
		t.Fatal(err)
	}
	full, _ := out.Field("Full name")
	if full.Formula != `[name First] + " " + [name Last]` {
		t.Errorf("formula: %q", full.Formula)
	}
}

func TestService_RemapDimensions_CollisionWritesNothing(t *testing.T) {
	svc := testService(nil)
	mapPath := writeTemp(t, "map.csv", "First name,Same\nLast name,Same\n")
	wbPath := writeTemp(t, "wb.twb", sampleWorkbook)
	outPath := filepath.Join(filepath.Dir(wbPath), "out.twb")

	before, _ := os.ReadFile(wbPath)

	_, err := svc.RemapDimensions(context.Background(), mapPath, wbPath, outPath)
	if !errors.Is(err, ErrRenameCollision) {
		t.Fatalf("expected ErrRenameCollision, got %v", err)
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Error("output file exists after failed remap")
	}
	after, _ := os.ReadFile(wbPath)
	if string(before) != string(after) {
		t.Error("input workbook modified by failed remap")
	}
	// No stray temp files either.
	entries, _ := os.ReadDir(filepath.Dir(wbPath))
	for _, e := range entries {
		if e.Name() != filepath.Base(wbPath) {
			t.Errorf("unexpected file left behind: %s", e.Name())
		}
	}
}

func TestService_RemapDimensions_Strict(t *testing.T) {
	svc := testService(&Config{Strict: true})
	mapPath := writeTemp(t, "map.csv", "Nope,Whatever\n")
	wbPath := writeTemp(t, "wb.twb", sampleWorkbook)
	outPath := filepath.Join(t.TempDir(), "out.twb")

	_, err := svc.RemapDimensions(context.Background(), mapPath, wbPath, outPath)
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestService_IOFailure(t *testing.T) {
	svc := testService(nil)
	_, err := svc.ValidateMappingFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestService_MaxFileSize(t *testing.T) {
	svc := testService(&Config{MaxFileSize: 4})
	path := writeTemp(t, "map.csv", "toolong,row\n")

	_, err := svc.ValidateMappingFile(context.Background(), path)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestService_WriteFile(t *testing.T) {
	svc := testService(nil)
	path := filepath.Join(t.TempDir(), "staged.csv")

	if err := svc.WriteFile(context.Background(), path, "a,b\n"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a,b\n" {
		t.Errorf("content: %q", data)
	}
}

func TestService_SuggestThenRemapIdempotent(t *testing.T) {
	// Suggest, remap with the suggestions, suggest again: second round empty.
	cfg := &Config{ReorderNameFields: true}
	svc := testService(cfg)
	dir := t.TempDir()
	wbPath := writeTemp(t, "wb.twb", sampleWorkbook)
	sugPath := filepath.Join(dir, "sug.csv")
	outPath := filepath.Join(dir, "out.twb")
	sug2Path := filepath.Join(dir, "sug2.csv")

	if _, err := svc.SuggestMappings(context.Background(), wbPath, sugPath); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RemapDimensions(context.Background(), sugPath, wbPath, outPath); err != nil {
		t.Fatal(err)
	}
	res, err := svc.SuggestMappings(context.Background(), outPath, sug2Path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Suggestions != 0 {
		data, _ := os.ReadFile(sug2Path)
		t.Errorf("second suggestion pass not empty: %s", data)
	}
}
