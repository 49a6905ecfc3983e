package ccda

import (
	"fmt"
	"strings"
	"time"
)

// DefaultReferenceYear is the year ages are computed against unless the
// parser is configured otherwise.
const DefaultReferenceYear = 2024

// Parser extracts patient demographics, diagnoses and medications from
// CDA-style XML. It is safe for concurrent use because it holds no
// mutable state.
type Parser struct {
	referenceYear int
}

// Option configures a Parser.
type Option func(*Parser)

// WithReferenceYear sets the year used to derive ages from birth dates.
func WithReferenceYear(year int) Option {
	return func(p *Parser) {
		if year > 0 {
			p.referenceYear = year
		}
	}
}

// NewParser creates a new parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{referenceYear: DefaultReferenceYear}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ReferenceYear returns the year ages are derived against.
func (p *Parser) ReferenceYear() int {
	return p.referenceYear
}

// Parse walks one XML document and returns the post-processed extraction.
// Any markup or encoding failure yields an *XMLStructureError.
func (p *Parser) Parse(fileName string, xmlData []byte) (*Document, error) {
	x := &extraction{
		doc:           newDocument(fileName),
		referenceYear: p.referenceYear,
	}

	if err := walk(xmlData, x); err != nil {
		return nil, &XMLStructureError{FileName: fileName, Err: err}
	}

	PostProcess(x.doc)
	return x.doc, nil
}

// ParseString is a convenience wrapper around Parse.
func (p *Parser) ParseString(fileName, xmlText string) (*Document, error) {
	return p.Parse(fileName, []byte(xmlText))
}

// parseHL7Time parses an HL7 time string into a time.Time.
func parseHL7Time(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch len(s) {
	case 14: // YYYYMMDDHHmmss
		return time.Parse("20060102150405", s)
	case 12: // YYYYMMDDHHmm
		return time.Parse("200601021504", s)
	case 8: // YYYYMMDD
		return time.Parse("20060102", s)
	default:
		if len(s) > 14 {
			return time.Parse("20060102150405", s[:14])
		}
		return time.Time{}, fmt.Errorf("ccda: unrecognized time format: %s", s)
	}
}

// formatParsedDate converts an HL7 date (YYYYMMDD) to YYYY-MM-DD.
func formatParsedDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 8 {
		return s[:4] + "-" + s[4:6] + "-" + s[6:8]
	}
	return s
}
