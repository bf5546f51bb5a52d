package dimap

import (
	"errors"
	"strings"
	"testing"
)

func mustTable(t *testing.T, csv string) *MappingTable {
	t.Helper()
	table, _, err := ParseMappingCSV([]byte(csv), MappingParseOptions{})
	if err != nil {
		t.Fatalf("ParseMappingCSV: %v", err)
	}
	return table
}

func TestRemap_EndToEnd(t *testing.T) {
	wb := mustParse(t, sampleWorkbook)
	table := mustTable(t, "First name,name First\nLast name,name Last\n")

	res, err := Remap(table, wb, RemapOptions{})
	if err != nil {
		t.Fatalf("Remap: %v", err)
	}
	if res.State != StateDone {
		t.Errorf("state: %s", res.State)
	}

	out, err := ParseWorkbook(res.Output)
	if err != nil {
		t.Fatalf("reparse output: %v", err)
	}
	if _, ok := out.Field("name First"); !ok {
		t.Error("name First missing from output catalog")
	}
	if _, ok := out.Field("First name"); ok {
		t.Error("First name still in output catalog")
	}

	full, _ := out.Field("Full name")
	if full.Formula != `[name First] + " " + [name Last]` {
		t.Errorf("formula not rewritten: %q", full.Formula)
	}

	// Filter and sort shelf references follow.
	s := string(res.Output)
	if strings.Contains(s, "[federated.0abc1].[First name]") {
		t.Error("filter reference not rewritten")
	}
	if !strings.Contains(s, "[federated.0abc1].[name Last]") {
		t.Error("sort reference not rewritten")
	}
}

func TestRemap_Counts(t *testing.T) {
	wb := mustParse(t, sampleWorkbook)
	table := mustTable(t, "First name,name First\n")

	res, err := Remap(table, wb, RemapOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// Catalog column, formula, dependencies column, filter reference.
	if res.Replacements["First name"] != 4 {
		t.Errorf("replacements: %v", res.Replacements)
	}
	if res.Total != 4 {
		t.Errorf("total: %d", res.Total)
	}
}

func TestRemap_SwapNoChaining(t *testing.T) {
	doc := `<workbook version='18.1'>
  <datasources>
    <datasource name='ds'>
      <column name='[A]' role='dimension' type='nominal' />
      <column name='[B]' role='dimension' type='nominal' />
      <column name='[calc]' role='dimension' type='nominal'>
        <calculation class='tableau' formula='[A] + [B]' />
      </column>
    </datasource>
  </datasources>
  <worksheets><worksheet name='s' /></worksheets>
</workbook>`
	wb := mustParse(t, doc)
	table := mustTable(t, "A,B\nB,C\n")

	res, err := Remap(table, wb, RemapOptions{})
	if err != nil {
		t.Fatalf("swap-shaped mapping must succeed: %v", err)
	}

	out, _ := ParseWorkbook(res.Output)
	if _, ok := out.Field("B"); !ok {
		t.Error("field A should now be B")
	}
	if _, ok := out.Field("C"); !ok {
		t.Error("field B should now be C")
	}
	calc, _ := out.Field("calc")
	if calc.Formula != "[B] + [C]" {
		t.Errorf("formula chained or wrong: %q", calc.Formula)
	}
}

func TestRemap_CollisionFailsBeforeMutation(t *testing.T) {
	doc := `<workbook version='18.1'>
  <datasources>
    <datasource name='ds'>
      <column name='[A]' role='dimension' type='nominal' />
      <column name='[B]' role='dimension' type='nominal' />
    </datasource>
  </datasources>
  <worksheets><worksheet name='s' /></worksheets>
</workbook>`
	wb := mustParse(t, doc)
	table := mustTable(t, "A,Same\nB,Same\n")

	res, err := Remap(table, wb, RemapOptions{})
	if !errors.Is(err, ErrRenameCollision) {
		t.Fatalf("expected ErrRenameCollision, got %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("state: %s", res.State)
	}
	if res.Output != nil {
		t.Error("failed run must produce no output")
	}
	// The workbook is untouched.
	if _, ok := wb.Field("A"); !ok {
		t.Error("workbook mutated on failure")
	}
}

func TestRemap_RenameOntoExistingField(t *testing.T) {
	doc := `<workbook version='18.1'>
  <datasources>
    <datasource name='ds'>
      <column name='[A]' role='dimension' type='nominal' />
      <column name='[B]' role='dimension' type='nominal' />
    </datasource>
  </datasources>
  <worksheets><worksheet name='s' /></worksheets>
</workbook>`
	wb := mustParse(t, doc)
	// A lands on B while B stays put.
	table := mustTable(t, "A,B\n")

	_, err := Remap(table, wb, RemapOptions{})
	if !errors.Is(err, ErrRenameCollision) {
		t.Fatalf("expected ErrRenameCollision, got %v", err)
	}
}

func TestRemap_UnknownOriginalWarns(t *testing.T) {
	wb := mustParse(t, sampleWorkbook)
	table := mustTable(t, "Nonexistent,Whatever\nFirst name,name First\n")

	res, err := Remap(table, wb, RemapOptions{})
	if err != nil {
		t.Fatalf("non-strict mode must tolerate unknown originals: %v", err)
	}
	if res.Report.Warnings() == 0 {
		t.Error("expected a warning")
	}
	if res.Replacements["Nonexistent"] != 0 {
		t.Error("unknown original must not be applied")
	}
}

func TestRemap_StrictUnknownOriginalFails(t *testing.T) {
	wb := mustParse(t, sampleWorkbook)
	table := mustTable(t, "Nonexistent,Whatever\n")

	res, err := Remap(table, wb, RemapOptions{Strict: true})
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if res.State != StateFailed || res.Output != nil {
		t.Errorf("result: %+v", res)
	}
}

func TestRemap_TokenSafety(t *testing.T) {
	doc := `<workbook version='18.1'>
  <datasources>
    <datasource name='ds'>
      <column name='[Sales]' role='dimension' type='nominal' />
      <column name='[SalesTax]' role='dimension' type='nominal' />
      <column name='[calc]' role='dimension' type='nominal'>
        <calculation class='tableau' formula='[Sales] + [SalesTax]' />
      </column>
    </datasource>
  </datasources>
  <worksheets><worksheet name='s' /></worksheets>
</workbook>`
	wb := mustParse(t, doc)
	table := mustTable(t, "Sales,Revenue\n")

	res, err := Remap(table, wb, RemapOptions{})
	if err != nil {
		t.Fatal(err)
	}

	out, _ := ParseWorkbook(res.Output)
	if _, ok := out.Field("SalesTax"); !ok {
		t.Error("SalesTax damaged by Sales rename")
	}
	calc, _ := out.Field("calc")
	if calc.Formula != "[Revenue] + [SalesTax]" {
		t.Errorf("formula: %q", calc.Formula)
	}
}

func TestRemap_CaptionExactMatch(t *testing.T) {
	doc := `<workbook version='18.1'>
  <datasources>
    <datasource name='ds'>
      <column caption='First name' name='[fn_1]' role='dimension' type='nominal' />
    </datasource>
  </datasources>
  <worksheets><worksheet name='s' /></worksheets>
</workbook>`
	wb := mustParse(t, doc)
	table := mustTable(t, "First name,name First\n")

	// The original matches no internal name, only a caption; non-strict mode
	// warns for the catalog miss but still rewrites the caption.
	res, err := Remap(table, wb, RemapOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(res.Output), "caption='name First'") {
		t.Errorf("caption not rewritten:\n%s", res.Output)
	}
}
