package table

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func TestValue_Kinds(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		wantKind Kind
		wantNull bool
		wantText string
	}{
		{"zero", Value{}, KindNull, true, ""},
		{"string", String("Asthma"), KindString, false, "Asthma"},
		{"integral number", Number(3), KindNumber, false, "3"},
		{"fractional number", Number(2.5), KindNumber, false, "2.5"},
		{"nan", Number(math.NaN()), KindNumber, true, "nan"},
		{"list", Strings("a", "b"), KindList, false, "a, b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Kind(); got != tt.wantKind {
				t.Errorf("Kind() = %v, want %v", got, tt.wantKind)
			}
			if got := tt.value.IsNull(); got != tt.wantNull {
				t.Errorf("IsNull() = %v, want %v", got, tt.wantNull)
			}
			if got := tt.value.Text(); got != tt.wantText {
				t.Errorf("Text() = %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestList_Flattens(t *testing.T) {
	v := List(String("a"), Strings("b", "c"), Null())
	if v.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", v.Len())
	}
	for _, it := range v.Items() {
		if it.IsList() {
			t.Errorf("nested list survived: %v", it)
		}
	}
}

func TestFromAny(t *testing.T) {
	v := FromAny([]any{"x", 1.0, nil})
	if !v.IsList() || v.Len() != 3 {
		t.Fatalf("FromAny() = %+v, want 3-element list", v)
	}
	if !v.Equal(List(String("x"), Number(1), Null())) {
		t.Errorf("FromAny() = %+v", v)
	}
	if got := FromAny(42).Text(); got != "42" {
		t.Errorf("FromAny(42).Text() = %s", got)
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := map[string]string{
		" NCT001 ": "NCT001",
		"7.0":      "7",
		"7.5":      "7.5",
		"-3.0":     "-3",
		"abc.0":    "abc.0",
		"":         "",
	}
	for in, want := range tests {
		if got := NormalizeKey(in); got != want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func sample() *Table {
	t := New("nct_id", "condition")
	t.Append(String("NCT001"), String("Asthma"))
	t.Append(String("NCT002"), String("COPD"))
	t.Append(String("NCT001"), String("Duplicate"))
	t.Append(String(" NCT003 "), Null())
	return t
}

func TestFilter(t *testing.T) {
	allow := map[string]struct{}{"NCT001": {}, "NCT003": {}}
	got := sample().Filter("nct_id", allow)

	if got.Len() != 3 {
		t.Fatalf("Filter() rows = %d, want 3", got.Len())
	}
	if got.Rows[2].Key("nct_id") != "NCT003" {
		t.Errorf("trimmed id should match allow-set, got %q", got.Rows[2].Key("nct_id"))
	}

	if all := sample().Filter("nct_id", nil); all.Len() != 4 {
		t.Errorf("nil allow-set kept %d rows, want 4", all.Len())
	}
}

func TestDedupBy_KeepsFirst(t *testing.T) {
	got := sample().DedupBy("nct_id")
	if got.Len() != 3 {
		t.Fatalf("DedupBy() rows = %d, want 3", got.Len())
	}
	if c := got.Rows[0].Get("condition").Text(); c != "Asthma" {
		t.Errorf("first occurrence lost, condition = %s", c)
	}
}

func TestDropAndUnique(t *testing.T) {
	tbl := New("Unnamed: 0", "nct_id")
	tbl.Append(String("0"), String("B"))
	tbl.Append(String("1"), String("A"))
	tbl.Append(String("2"), String("B"))

	dropped := tbl.Drop("Unnamed: 0", "missing")
	if len(dropped.Columns) != 1 || dropped.Columns[0] != "nct_id" {
		t.Errorf("Drop() columns = %v", dropped.Columns)
	}
	if got := strings.Join(tbl.Unique("nct_id"), ","); got != "B,A" {
		t.Errorf("Unique() = %s, want B,A", got)
	}
}

func TestLeftMerge(t *testing.T) {
	left := New("nct_id", "title")
	left.Append(String("A"), String("Trial A"))
	left.Append(String("B"), String("Trial B"))

	right := New("nct_id", "eligibility_criteria", "title")
	right.Append(String("A"), String("adults"), String("dup"))
	right.Append(String("A"), String("children"), String("dup2"))

	merged, err := LeftMerge(left, right, "nct_id")
	if err != nil {
		t.Fatalf("LeftMerge() error = %v", err)
	}

	wantCols := "nct_id,title_x,eligibility_criteria,title_y"
	if got := strings.Join(merged.Columns, ","); got != wantCols {
		t.Errorf("columns = %s, want %s", got, wantCols)
	}
	if merged.Len() != 3 {
		t.Fatalf("rows = %d, want 3", merged.Len())
	}
	if !merged.Rows[2].Get("eligibility_criteria").IsNull() {
		t.Errorf("unmatched left row should get null right columns")
	}

	if _, err := LeftMerge(left, New("other"), "nct_id"); err == nil {
		t.Error("expected error when join column is missing")
	}
}

func TestConcat(t *testing.T) {
	a := New("nct_id")
	a.Append(String("A"))
	b := New("nct_id", "phase")
	b.Append(String("B"), String("2"))

	a.Concat(b)
	if len(a.Columns) != 2 || a.Len() != 2 {
		t.Fatalf("Concat() = %v cols, %d rows", a.Columns, a.Len())
	}
	if !a.Rows[0].Get("phase").IsNull() {
		t.Error("earlier rows should get null for new columns")
	}
}

func TestCSV_RoundTrip(t *testing.T) {
	input := "\ufeffnct_id,condition,notes\n" +
		"NCT001,\"[\"\"Asthma\"\",\"\"nan\"\"]\",\n" +
		"NCT002,plain,\"multi\nline\"\n"

	tbl, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if tbl.Columns[0] != "nct_id" {
		t.Errorf("BOM not stripped: %q", tbl.Columns[0])
	}
	if tbl.Len() != 2 {
		t.Fatalf("rows = %d, want 2", tbl.Len())
	}

	cond := tbl.Rows[0].Get("condition")
	if !cond.IsList() || cond.Len() != 2 {
		t.Errorf("condition = %+v, want 2-element list", cond)
	}
	if !tbl.Rows[0].Get("notes").IsNull() {
		t.Error("empty cell should be null")
	}
	if got := tbl.Rows[1].Get("notes").Text(); got != "multi\nline" {
		t.Errorf("notes = %q", got)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, tbl); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	again, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV() after write error = %v", err)
	}
	if !again.Rows[0].Get("condition").Equal(cond) {
		t.Errorf("list cell did not survive round trip: %+v", again.Rows[0].Get("condition"))
	}
}

func TestParseCell(t *testing.T) {
	tests := []struct {
		in   string
		want Value
	}{
		{"", Null()},
		{"text", String("text")},
		{"[1, 2]", List(Number(1), Number(2))},
		{"[not json", String("[not json")},
		{"['python', 'repr']", String("['python', 'repr']")},
	}
	for _, tt := range tests {
		if got := ParseCell(tt.in); !got.Equal(tt.want) {
			t.Errorf("ParseCell(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestFormatCell(t *testing.T) {
	if got := FormatCell(List(String("a<b"), Number(2), Null())); got != `["a<b",2,null]` {
		t.Errorf("FormatCell() = %s", got)
	}
	if got := FormatCell(Null()); got != "" {
		t.Errorf("FormatCell(null) = %q", got)
	}
}
