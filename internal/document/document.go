// Package document turns table rows into plain-text documents for indexing.
package document

import (
	"strings"
	"unicode"

	"github.com/trialmatch/trialrag/internal/table"
)

// Options controls synthesis.
type Options struct {
	// IDColumn is the column holding the record identifier.
	IDColumn string

	// IDLabel prefixes the identifier header, as in "NCT_ID: NCT001".
	IDLabel string

	// NullMarker is the literal text treated as missing, both for scalar
	// cells and for list elements.
	NullMarker string
}

// DefaultOptions returns the clinical-trial settings.
func DefaultOptions() Options {
	return Options{
		IDColumn:   "nct_id",
		IDLabel:    "NCT_ID",
		NullMarker: "nan",
	}
}

// Section is either the identifier header or a titled field.
type Section struct {
	Header string
	Title  string
	Body   string
}

// IsHeader reports whether s is the identifier header.
func (s Section) IsHeader() bool {
	return s.Header != ""
}

// String renders the section: the header line, or the title and body on
// separate lines.
func (s Section) String() string {
	if s.IsHeader() {
		return s.Header
	}
	return s.Title + "\n" + s.Body
}

// Document is the synthesized representation of one record.
type Document struct {
	ID       string
	Sections []Section
}

// Text joins the sections with blank lines.
func (d Document) Text() string {
	return strings.Join(d.Strings(), "\n\n")
}

// Strings returns the rendered sections in order.
func (d Document) Strings() []string {
	out := make([]string, len(d.Sections))
	for i, s := range d.Sections {
		out[i] = s.String()
	}
	return out
}

// HeaderOnly reports whether the document has no field sections.
func (d Document) HeaderOnly() bool {
	for _, s := range d.Sections {
		if !s.IsHeader() {
			return false
		}
	}
	return true
}

// Synthesize renders row into a document. columns fixes the section order;
// columns absent from the row are skipped. The identifier column becomes the
// header section, and every other column with a non-empty rendering becomes
// a titled section.
//
// ID holds the normalized key used for matching ("7.0" becomes "7"), while
// the header shows the trimmed cell text as stored. A missing identifier
// produces no header.
func Synthesize(row table.Row, columns []string, opts Options) Document {
	doc := Document{ID: row.Key(opts.IDColumn)}

	for _, col := range columns {
		if !row.Has(col) {
			continue
		}
		if col == opts.IDColumn {
			id, ok := render(row.Get(col), opts.NullMarker)
			if ok {
				doc.Sections = append(doc.Sections, Section{
					Header: opts.IDLabel + ": " + id,
				})
			}
			continue
		}

		body, ok := render(row.Get(col), opts.NullMarker)
		if !ok {
			continue
		}
		doc.Sections = append(doc.Sections, Section{
			Title: Title(strings.ReplaceAll(col, "_", " ")),
			Body:  body,
		})
	}
	return doc
}

// render returns the body text for v and whether it should be emitted.
func render(v table.Value, nullMarker string) (string, bool) {
	if v.IsList() {
		items := v.Items()
		if len(items) == 0 || (len(items) == 1 && items[0].IsNull()) {
			return "", false
		}

		var kept []string
		for _, it := range items {
			if it.IsNull() {
				continue
			}
			s := strings.TrimSpace(it.Text())
			if s == "" || s == nullMarker {
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			return "", false
		}
		return strings.Join(kept, ", "), true
	}

	if v.IsNull() {
		return "", false
	}
	s := strings.TrimSpace(v.Text())
	if s == "" || s == nullMarker {
		return "", false
	}
	return s, true
}

// Title upper-cases the first letter of every run of letters and lower-cases
// the rest. Any non-letter starts a new run, so "2nd" becomes "2Nd".
func Title(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToTitle(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
