package dimap

import (
	"reflect"
	"testing"
)

func TestScanFieldRefs(t *testing.T) {
	refs := scanFieldRefs(`[First name] + " " + [Last name]`)
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}
	if refs[0].Name != "First name" || refs[1].Name != "Last name" {
		t.Errorf("unexpected names: %q, %q", refs[0].Name, refs[1].Name)
	}
	if refs[0].Start != 0 || refs[0].End != len("[First name]") {
		t.Errorf("unexpected span: %d..%d", refs[0].Start, refs[0].End)
	}
}

func TestScanFieldRefs_EscapedBracket(t *testing.T) {
	refs := scanFieldRefs("SUM([Sales ]]actual]]])")
	if len(refs) != 1 {
		t.Fatalf("expected 1 ref, got %d", len(refs))
	}
	if refs[0].Name != "Sales ]actual]" {
		t.Errorf("got %q", refs[0].Name)
	}
}

func TestScanFieldRefs_Unterminated(t *testing.T) {
	if refs := scanFieldRefs("IF [Sales > 10"); refs != nil {
		t.Errorf("unterminated bracket yielded refs: %v", refs)
	}
}

func TestScanFieldRefs_NoRefs(t *testing.T) {
	if refs := scanFieldRefs("1 + 2"); refs != nil {
		t.Errorf("expected nil, got %v", refs)
	}
}

func TestRewriteFieldRefs_TokenSafety(t *testing.T) {
	// [Sales] must never touch [SalesTax].
	lookup := map[string]string{"Sales": "Revenue"}
	out, changed := rewriteFieldRefs("[Sales] + [SalesTax]", lookup, nil)
	if !changed {
		t.Fatal("expected change")
	}
	if out != "[Revenue] + [SalesTax]" {
		t.Errorf("got %q", out)
	}
}

func TestRewriteFieldRefs_NoChaining(t *testing.T) {
	lookup := map[string]string{"A": "B", "B": "C"}
	counts := make(map[string]int)
	out, _ := rewriteFieldRefs("[A] + [B]", lookup, counts)
	if out != "[B] + [C]" {
		t.Errorf("got %q, want chained-free rewrite", out)
	}
	if !reflect.DeepEqual(counts, map[string]int{"A": 1, "B": 1}) {
		t.Errorf("counts: %v", counts)
	}
}

func TestRewriteFieldRefs_Unchanged(t *testing.T) {
	s := "[Region] + 1"
	out, changed := rewriteFieldRefs(s, map[string]string{"Sales": "Revenue"}, nil)
	if changed || out != s {
		t.Errorf("expected untouched, got %q (changed=%v)", out, changed)
	}
}

func TestRewriteFieldRefs_EscapesReplacement(t *testing.T) {
	lookup := map[string]string{"Plain": "Tricky ] name"}
	out, _ := rewriteFieldRefs("[Plain]", lookup, nil)
	if out != "[Tricky ]] name]" {
		t.Errorf("got %q", out)
	}
	back := scanFieldRefs(out)
	if len(back) != 1 || back[0].Name != "Tricky ] name" {
		t.Errorf("round-trip failed: %v", back)
	}
}

func TestBracketHelpers(t *testing.T) {
	if got := bracketName("Sales"); got != "[Sales]" {
		t.Errorf("bracketName: %q", got)
	}
	if got := unbracketName("[Sales]"); got != "Sales" {
		t.Errorf("unbracketName: %q", got)
	}
	if got := unbracketName("Sales"); got != "Sales" {
		t.Errorf("unbracketName plain: %q", got)
	}
	if got := unbracketName("[A ]] B]"); got != "A ] B" {
		t.Errorf("unbracketName escaped: %q", got)
	}
}
