package document

import (
	"math"
	"reflect"
	"testing"

	"github.com/trialmatch/trialrag/internal/table"
)

func row(cols []string, vals ...table.Value) table.Row {
	return table.NewRow(cols, vals)
}

func TestSynthesize_Scenario(t *testing.T) {
	cols := []string{"nct_id", "condition", "notes"}
	r := row(cols,
		table.String("NCT001"),
		table.Strings("Asthma", "nan"),
		table.String(""),
	)

	doc := Synthesize(r, cols, DefaultOptions())

	want := []string{"NCT_ID: NCT001", "Condition\nAsthma"}
	if got := doc.Strings(); !reflect.DeepEqual(got, want) {
		t.Errorf("Strings() = %q, want %q", got, want)
	}
	if doc.Text() != "NCT_ID: NCT001\n\nCondition\nAsthma" {
		t.Errorf("Text() = %q", doc.Text())
	}
	if doc.ID != "NCT001" {
		t.Errorf("ID = %q", doc.ID)
	}
}

func TestSynthesize_Rules(t *testing.T) {
	cols := []string{"nct_id", "brief_title", "phase", "keywords", "empty_list", "single_null", "gone"}

	tests := []struct {
		name string
		vals []table.Value
		want []string
	}{
		{
			name: "scalars are trimmed",
			vals: []table.Value{table.String("NCT9"), table.String("  Study of X  "), table.Number(2)},
			want: []string{"NCT_ID: NCT9", "Brief Title\nStudy of X", "Phase\n2"},
		},
		{
			name: "null and nan scalars skipped",
			vals: []table.Value{table.String("NCT9"), table.Null(), table.Number(math.NaN())},
			want: []string{"NCT_ID: NCT9"},
		},
		{
			name: "null marker scalars skipped",
			vals: []table.Value{table.String("NCT9"), table.String("nan"), table.String("  nan ")},
			want: []string{"NCT_ID: NCT9"},
		},
		{
			name: "list elements joined and filtered",
			vals: []table.Value{
				table.String("NCT9"), table.Null(), table.Null(),
				table.List(table.String(" a "), table.Null(), table.String(""), table.String("nan"), table.Number(3)),
			},
			want: []string{"NCT_ID: NCT9", "Keywords\na, 3"},
		},
		{
			name: "empty and single null lists skipped",
			vals: []table.Value{
				table.String("NCT9"), table.Null(), table.Null(), table.Null(),
				table.List(), table.List(table.Null()),
			},
			want: []string{"NCT_ID: NCT9"},
		},
		{
			name: "list of only markers skipped",
			vals: []table.Value{
				table.String("NCT9"), table.Null(), table.Null(),
				table.Strings("nan", " "),
			},
			want: []string{"NCT_ID: NCT9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Synthesize(row(cols, tt.vals...), cols, DefaultOptions())
			if got := doc.Strings(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Strings() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSynthesize_ColumnOrder(t *testing.T) {
	r := row([]string{"nct_id", "a", "b"}, table.String("X"), table.String("1"), table.String("2"))

	doc := Synthesize(r, []string{"b", "nct_id", "a", "missing"}, DefaultOptions())
	want := []string{"B\n2", "NCT_ID: X", "A\n1"}
	if got := doc.Strings(); !reflect.DeepEqual(got, want) {
		t.Errorf("Strings() = %q, want %q", got, want)
	}
}

func TestSynthesize_HeaderOnly(t *testing.T) {
	cols := []string{"nct_id", "eligibility_criteria"}
	doc := Synthesize(row(cols, table.String("NCT5"), table.Null()), cols, DefaultOptions())

	if !doc.HeaderOnly() {
		t.Error("HeaderOnly() = false, want true")
	}
	if len(doc.Sections) != 1 || !doc.Sections[0].IsHeader() {
		t.Errorf("Sections = %+v", doc.Sections)
	}
}

func TestSynthesize_MissingID(t *testing.T) {
	cols := []string{"nct_id", "brief_title"}

	for _, id := range []table.Value{table.Null(), table.String("nan"), table.String("  ")} {
		doc := Synthesize(row(cols, id, table.String("Study")), cols, DefaultOptions())
		want := []string{"Brief Title\nStudy"}
		if got := doc.Strings(); !reflect.DeepEqual(got, want) {
			t.Errorf("id %v: Strings() = %q, want %q", id, got, want)
		}
	}
}

func TestSynthesize_HeaderKeepsCellText(t *testing.T) {
	cols := []string{"nct_id"}
	doc := Synthesize(row(cols, table.String(" 7.0 ")), cols, DefaultOptions())

	if doc.ID != "7" {
		t.Errorf("ID = %q, want 7", doc.ID)
	}
	if got := doc.Strings(); !reflect.DeepEqual(got, []string{"NCT_ID: 7.0"}) {
		t.Errorf("Strings() = %q", got)
	}
}

func TestSynthesize_CustomOptions(t *testing.T) {
	cols := []string{"id", "body"}
	opts := Options{IDColumn: "id", IDLabel: "DOC", NullMarker: "N/A"}
	r := row(cols, table.String("7"), table.Strings("N/A", "text"))

	want := []string{"DOC: 7", "Body\ntext"}
	if got := Synthesize(r, cols, opts).Strings(); !reflect.DeepEqual(got, want) {
		t.Errorf("Strings() = %q, want %q", got, want)
	}
}

func TestTitle(t *testing.T) {
	tests := map[string]string{
		"eligibility criteria": "Eligibility Criteria",
		"BRIEF title":          "Brief Title",
		"2nd line":             "2Nd Line",
		"covid19 status":       "Covid19 Status",
		"o'brien":              "O'Brien",
		"":                     "",
	}
	for in, want := range tests {
		if got := Title(in); got != want {
			t.Errorf("Title(%q) = %q, want %q", in, got, want)
		}
	}
}
