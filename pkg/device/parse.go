package device

import (
	"regexp"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/net/html"
)

// LivenessMarker is the identity string every status page of the desk
// controller firmware carries.
const LivenessMarker = "ESP32 Desk Controller"

// Limits are the travel limits of the desk in mm.
type Limits struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// HeightPattern is one entry of the height extraction cascade. The first
// capture group of Expr must be the height in mm.
type HeightPattern struct {
	Expr            string
	CaseInsensitive bool
}

// DefaultHeightPatterns is ordered from the exact firmware output to the
// loosest fallback. New firmware variants go here.
var DefaultHeightPatterns = []HeightPattern{
	{Expr: `Current Height: (\d+) mm`},
	{Expr: `Current Height:\s*(\d+)\s*mm`},
	{Expr: `Current Height: (\d+) mm`, CaseInsensitive: true},
	{Expr: `Current Height:\s*(\d+)\s*mm`, CaseInsensitive: true},
	{Expr: `Current\s+Height:\s*(\d+)\s*mm`, CaseInsensitive: true},
	{Expr: `[Hh]eight:\s*(\d+)\s*mm`},
}

var (
	minimumPattern = regexp.MustCompile(`Minimum:\s*(\d+)`)
	maximumPattern = regexp.MustCompile(`Maximum:\s*(\d+)`)

	defaultStatusParser = MustNewStatusParser(DefaultHeightPatterns)
)

// StatusParser extracts the current height from the free-form status text.
type StatusParser struct {
	patterns []*regexp.Regexp
}

// NewStatusParser compiles the given cascade.
func NewStatusParser(patterns []HeightPattern) (*StatusParser, error) {
	p := &StatusParser{}
	for _, hp := range patterns {
		expr := hp.Expr
		if hp.CaseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "invalid height pattern %q", hp.Expr)
		}
		if re.NumSubexp() < 1 {
			return nil, pkgerrors.Errorf("height pattern %q has no capture group", hp.Expr)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// MustNewStatusParser is like NewStatusParser but panics on error.
func MustNewStatusParser(patterns []HeightPattern) *StatusParser {
	p, err := NewStatusParser(patterns)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseHeight tries every pattern, in order, against the raw text and
// then its HTML-stripped form. The first valid integer wins.
func (p *StatusParser) ParseHeight(text string) (int, error) {
	forms := []string{text, StripHTML(text)}
	for _, re := range p.patterns {
		for _, form := range forms {
			if v, ok := firstInt(re, form); ok {
				return v, nil
			}
		}
	}
	return 0, pkgerrors.Wrap(ErrParseFailure, "no height found in status text")
}

// ParseHeight parses a status body with DefaultHeightPatterns.
func ParseHeight(text string) (int, error) {
	return defaultStatusParser.ParseHeight(text)
}

// ParseLimits extracts "Minimum: N" and "Maximum: N" from the limits body.
// Both must be present.
func ParseLimits(text string) (Limits, error) {
	forms := []string{text, StripHTML(text)}

	var (
		l            Limits
		minOK, maxOK bool
	)
	for _, form := range forms {
		if !minOK {
			l.Min, minOK = firstInt(minimumPattern, form)
		}
		if !maxOK {
			l.Max, maxOK = firstInt(maximumPattern, form)
		}
	}

	if !minOK {
		return Limits{}, pkgerrors.Wrap(ErrParseFailure, "no minimum found in limits text")
	}
	if !maxOK {
		return Limits{}, pkgerrors.Wrap(ErrParseFailure, "no maximum found in limits text")
	}
	return l, nil
}

// HasLivenessMarker reports whether text came from a desk controller.
func HasLivenessMarker(text string) bool {
	return strings.Contains(text, LivenessMarker)
}

// StripHTML drops markup, decodes entities and collapses whitespace.
func StripHTML(text string) string {
	z := html.NewTokenizer(strings.NewReader(text))
	b := strings.Builder{}
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		}
		// Tags separate words even when the page has no whitespace.
		b.WriteByte(' ')
	}
}

func firstInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}
