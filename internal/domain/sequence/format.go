package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type segmentKind int

const (
	segmentLiteral segmentKind = iota
	segmentNumber
	segmentYear4
	segmentYear2
)

type segment struct {
	kind    segmentKind
	literal string
	width   int
}

// Format is a compiled number format such as "RE-{number}", "KD-000",
// "KD-%NUMBER" or "RE-{YYYY}-{number:3}".
type Format struct {
	raw      string
	segments []segment
}

var placeholderPattern = regexp.MustCompile(`\{number(?::(\d+))?\}|%NUMBER|\{YYYY\}|\{YY\}`)

// ParseFormat compiles a format string. It never fails: a format without a
// placeholder gets the number appended, and a trailing run of zeros is a
// zero-padding template of that width.
func ParseFormat(raw string) Format {
	f := Format{raw: raw}
	hasNumber := false
	last := 0

	for _, m := range placeholderPattern.FindAllStringSubmatchIndex(raw, -1) {
		if m[0] > last {
			f.segments = append(f.segments, segment{kind: segmentLiteral, literal: raw[last:m[0]]})
		}
		token := raw[m[0]:m[1]]
		switch {
		case token == "{YYYY}":
			f.segments = append(f.segments, segment{kind: segmentYear4})
		case token == "{YY}":
			f.segments = append(f.segments, segment{kind: segmentYear2})
		case token == "%NUMBER":
			f.segments = append(f.segments, segment{kind: segmentNumber, width: 3})
			hasNumber = true
		default:
			width := 0
			if m[2] >= 0 {
				width, _ = strconv.Atoi(raw[m[2]:m[3]])
			}
			f.segments = append(f.segments, segment{kind: segmentNumber, width: width})
			hasNumber = true
		}
		last = m[1]
	}
	if last < len(raw) {
		f.segments = append(f.segments, segment{kind: segmentLiteral, literal: raw[last:]})
	}

	if !hasNumber {
		f.appendImplicitNumber()
	}
	return f
}

func (f *Format) appendImplicitNumber() {
	if n := len(f.segments); n > 0 && f.segments[n-1].kind == segmentLiteral {
		lit := f.segments[n-1].literal
		trimmed := strings.TrimRight(lit, "0")
		if zeros := len(lit) - len(trimmed); zeros > 0 {
			f.segments[n-1].literal = trimmed
			if trimmed == "" {
				f.segments = f.segments[:n-1]
			}
			f.segments = append(f.segments, segment{kind: segmentNumber, width: zeros})
			return
		}
	}
	f.segments = append(f.segments, segment{kind: segmentNumber})
}

// String returns the original format.
func (f Format) String() string {
	return f.raw
}

// Render produces the formatted document number.
func (f Format) Render(n int64, at time.Time) string {
	var b strings.Builder
	for _, s := range f.segments {
		switch s.kind {
		case segmentLiteral:
			b.WriteString(s.literal)
		case segmentNumber:
			b.WriteString(fmt.Sprintf("%0*d", s.width, n))
		case segmentYear4:
			b.WriteString(fmt.Sprintf("%04d", at.Year()))
		case segmentYear2:
			b.WriteString(fmt.Sprintf("%02d", at.Year()%100))
		}
	}
	return b.String()
}

// Parse extracts the integer embedded in a formatted number. Matching is
// case-insensitive and tolerates leading zeros, and a separator in the
// format's literal text may be any of "-", "_", "/" or a blank, or be
// missing. So "re_01005" and "RE-1005" both parse under "RE-{number}" while
// "RE-2025-007" is format drift.
func (f Format) Parse(formatted string) (int64, error) {
	m := f.pattern().FindStringSubmatch(strings.TrimSpace(formatted))
	if m == nil {
		return 0, &FormatDriftError{Value: formatted, Format: f.raw}
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, &FormatDriftError{Value: formatted, Format: f.raw, Err: err}
	}
	return n, nil
}

func (f Format) pattern() *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, s := range f.segments {
		switch s.kind {
		case segmentLiteral:
			b.WriteString(literalPattern(s.literal))
		case segmentNumber:
			b.WriteString(`(\d+)`)
		case segmentYear4:
			b.WriteString(`\d{4}`)
		case segmentYear2:
			b.WriteString(`\d{2}`)
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// literalPattern matches a literal verbatim except that each separator
// rune stands for at most one separator of any kind.
func literalPattern(lit string) string {
	var b strings.Builder
	for _, r := range lit {
		if isSeparator(r) {
			b.WriteString(`[-_/ \t]?`)
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	return b.String()
}

func isSeparator(r rune) bool {
	switch r {
	case '-', '_', '/', ' ', '\t':
		return true
	}
	return false
}
