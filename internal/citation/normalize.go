// File: internal/citation/normalize.go

// Package citation normalizes the raw export text captured from a source's
// cite dialog. Sources hand back whatever their export widget produces:
// BibTeX, RIS, or EndNote-flavored XML. Detect sniffs the format and Parse
// lifts the common bibliographic fields into a Record, keeping everything
// it does not recognize in Extra and the untouched payload in Raw.
package citation

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Format identifies the wire format of a captured citation export.
type Format string

const (
	FormatBibTeX  Format = "bibtex"
	FormatRIS     Format = "ris"
	FormatXML     Format = "xml"
	FormatUnknown Format = "unknown"
)

// Record is the normalized view of one captured citation.
type Record struct {
	Format  Format            `json:"format"`
	Type    string            `json:"type,omitempty"`
	Title   string            `json:"title,omitempty"`
	Authors []string          `json:"authors,omitempty"`
	Year    string            `json:"year,omitempty"`
	DOI     string            `json:"doi,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
	Raw     string            `json:"raw"`
}

// Detect sniffs the export format from its leading structure.
func Detect(raw string) Format {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, "@"):
		return FormatBibTeX
	case strings.HasPrefix(trimmed, "TY  -"):
		return FormatRIS
	case strings.HasPrefix(trimmed, "<"):
		return FormatXML
	default:
		return FormatUnknown
	}
}

// Parse normalizes a captured export. Unknown formats are not an error: the
// record passes through with the raw payload intact.
func Parse(raw string) (*Record, error) {
	switch Detect(raw) {
	case FormatBibTeX:
		return parseBibTeX(raw)
	case FormatRIS:
		return parseRIS(raw)
	case FormatXML:
		return parseXML(raw)
	default:
		return &Record{Format: FormatUnknown, Raw: raw}, nil
	}
}

// parseBibTeX handles a single `@type{key, field = {value}, ...}` entry.
func parseBibTeX(raw string) (*Record, error) {
	trimmed := strings.TrimSpace(raw)

	open := strings.IndexByte(trimmed, '{')
	if open < 2 || !strings.HasPrefix(trimmed, "@") {
		return nil, fmt.Errorf("malformed bibtex entry: missing opening brace")
	}
	entryType := strings.ToLower(strings.TrimSpace(trimmed[1:open]))

	// Find the brace that actually closes the entry; a truncated export
	// never returns to depth zero.
	end := -1
	depth := 0
	for i := open; i < len(trimmed); i++ {
		switch trimmed[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, fmt.Errorf("malformed bibtex entry: unbalanced braces")
	}
	body := trimmed[open+1 : end]

	rec := &Record{Format: FormatBibTeX, Type: entryType, Extra: map[string]string{}, Raw: raw}
	for i, part := range splitTopLevel(body) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i == 0 && !strings.Contains(part, "=") {
			rec.Extra["key"] = part
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = unwrapBibValue(value)

		switch name {
		case "title":
			rec.Title = value
		case "author":
			rec.Authors = splitBibAuthors(value)
		case "year":
			rec.Year = value
		case "doi":
			rec.DOI = value
		default:
			rec.Extra[name] = value
		}
	}
	return rec, nil
}

// splitTopLevel splits a BibTeX entry body on commas outside braces and
// quotes, so `author = {Day, A. and Knight, B.}` stays whole.
func splitTopLevel(body string) []string {
	var parts []string
	var depth int
	var inQuote bool
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '{':
			depth++
		case '}':
			depth--
		case '"':
			if depth == 0 {
				inQuote = !inQuote
			}
		case ',':
			if depth == 0 && !inQuote {
				parts = append(parts, body[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, body[start:])
	return parts
}

func unwrapBibValue(v string) string {
	v = strings.TrimSpace(v)
	for len(v) >= 2 {
		if (v[0] == '{' && v[len(v)-1] == '}') || (v[0] == '"' && v[len(v)-1] == '"') {
			v = strings.TrimSpace(v[1 : len(v)-1])
			continue
		}
		break
	}
	return v
}

func splitBibAuthors(v string) []string {
	var authors []string
	for _, a := range strings.Split(v, " and ") {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	return authors
}

// risTag matches the `XX  - value` line shape; tags are two uppercase
// letters or a letter and a digit.
func risTag(line string) (tag, value string, ok bool) {
	if len(line) < 5 || line[2:5] != "  -" {
		return "", "", false
	}
	tag = line[:2]
	for _, c := range tag {
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return "", "", false
		}
	}
	return tag, strings.TrimSpace(line[5:]), true
}

func parseRIS(raw string) (*Record, error) {
	rec := &Record{Format: FormatRIS, Extra: map[string]string{}, Raw: raw}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		tag, value, ok := risTag(line)
		if !ok {
			continue
		}
		switch tag {
		case "TY":
			rec.Type = strings.ToLower(value)
		case "TI", "T1":
			if rec.Title == "" {
				rec.Title = value
			}
		case "AU", "A1":
			if value != "" {
				rec.Authors = append(rec.Authors, value)
			}
		case "PY", "Y1":
			// RIS dates look like 2021/03/15 or just 2021.
			if year, _, _ := strings.Cut(value, "/"); rec.Year == "" {
				rec.Year = year
			}
		case "DO":
			rec.DOI = value
		case "ER":
			return rec, nil
		default:
			if value != "" {
				rec.Extra[strings.ToLower(tag)] = value
			}
		}
	}
	return nil, fmt.Errorf("malformed ris entry: missing ER terminator")
}

// parseXML handles EndNote-style exports: <records><record> with nested
// titles, contributors, dates and an electronic-resource-num for the DOI.
func parseXML(raw string) (*Record, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		return nil, fmt.Errorf("malformed xml export: %w", err)
	}

	record := doc.FindElement("//record")
	if record == nil {
		return nil, fmt.Errorf("malformed xml export: no record element")
	}

	rec := &Record{Format: FormatXML, Extra: map[string]string{}, Raw: raw}
	if el := record.FindElement(".//ref-type"); el != nil {
		if name := el.SelectAttrValue("name", ""); name != "" {
			rec.Type = strings.ToLower(name)
		} else {
			rec.Type = strings.ToLower(elementText(el))
		}
	}
	if el := record.FindElement("./titles/title"); el != nil {
		rec.Title = elementText(el)
	}
	for _, el := range record.FindElements("./contributors/authors/author") {
		if a := elementText(el); a != "" {
			rec.Authors = append(rec.Authors, a)
		}
	}
	if el := record.FindElement("./dates/year"); el != nil {
		rec.Year = elementText(el)
	}
	if el := record.FindElement(".//electronic-resource-num"); el != nil {
		rec.DOI = elementText(el)
	}
	return rec, nil
}

// elementText flattens an element's text, including <style> wrappers EndNote
// puts around field values.
func elementText(el *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		b.WriteString(e.Text())
		for _, child := range e.ChildElements() {
			walk(child)
			b.WriteString(child.Tail())
		}
	}
	walk(el)
	return strings.TrimSpace(b.String())
}
