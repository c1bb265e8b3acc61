// Package parser turns raw access-log lines into records.
//
// Two formats are recognized: one JSON object per line, and the Common Log
// Format. JSON is tried first; a line that is not a JSON object falls through
// to the Common Log Format grammar. Field coercion is lossy on purpose: a bad
// timestamp becomes the ingestion time and a non-numeric status or byte count
// becomes 0, so a record can always be built from a recognized line.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ehrlich-b/accesslog/internal/record"
	"github.com/valyala/fastjson"
)

// TimeLayout is the Common Log Format timestamp, e.g. 10/Oct/2000:13:55:36 -0700.
const TimeLayout = "02/Jan/2006:15:04:05 -0700"

// ErrMalformed is returned for lines matching neither supported format.
var ErrMalformed = errors.New("malformed line")

// commonLogRe matches IP - USER [TIMESTAMP] "REQUEST" STATUS BYTES.
// Anchored at the start only, so combined-format suffixes are tolerated.
var commonLogRe = regexp.MustCompile(`^(\S*) (\S*) (\S*) \[(.*?)\] "(.*?)" (\S*) (\S*)`)

// Format identifies which grammar produced a record.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatCommon
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCommon:
		return "common"
	default:
		return "unknown"
	}
}

// SkipReason says why a line produced no record.
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipBlank
	SkipMalformed
	SkipInvalid
)

func (s SkipReason) String() string {
	switch s {
	case SkipNone:
		return "none"
	case SkipBlank:
		return "blank"
	case SkipMalformed:
		return "malformed"
	case SkipInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("SkipReason(%d)", int(s))
	}
}

// Result is the outcome of parsing one line.
// Record is only meaningful when Skip is SkipNone.
type Result struct {
	Record record.Record
	Format Format
	Skip   SkipReason
	Err    error
}

// OK reports whether the line produced a record.
func (r Result) OK() bool {
	return r.Skip == SkipNone
}

// Parser converts lines to records. It is not safe for concurrent use.
type Parser struct {
	// Now supplies the fallback timestamp. Defaults to time.Now.
	Now func() time.Time

	json fastjson.Parser
}

// New creates a parser using the wall clock for timestamp fallback.
func New() *Parser {
	return &Parser{Now: time.Now}
}

func (p *Parser) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Parse converts one raw line.
func (p *Parser) Parse(line string) Result {
	line = strings.TrimSpace(line)
	if line == "" {
		return Result{Skip: SkipBlank}
	}

	if v, err := p.json.Parse(line); err == nil && v.Type() == fastjson.TypeObject {
		rec, err := p.fromJSON(v)
		if err != nil {
			return Result{Format: FormatJSON, Skip: SkipInvalid, Err: err}
		}
		return Result{Record: rec, Format: FormatJSON}
	}

	if m := commonLogRe.FindStringSubmatch(line); m != nil {
		return Result{Record: p.fromCommon(m), Format: FormatCommon}
	}

	return Result{Skip: SkipMalformed, Err: ErrMalformed}
}

func (p *Parser) fromCommon(m []string) record.Record {
	rec := record.New(time.Time{})
	rec.RemoteIP = m[1]
	rec.RemoteUser = m[3]
	rec.Timestamp = p.parseTime(m[4])
	rec.Request = m[5]
	rec.ResponseStatus = int(coerceDigits(m[6], 32))
	rec.BytesSent = coerceDigits(m[7], 64)
	return rec
}

func (p *Parser) fromJSON(obj *fastjson.Value) (record.Record, error) {
	rec := record.New(p.now())

	strFields := []struct {
		key string
		dst *string
	}{
		{"remote_ip", &rec.RemoteIP},
		{"remote_user", &rec.RemoteUser},
		{"request", &rec.Request},
		{"referrer", &rec.Referrer},
		{"agent", &rec.Agent},
	}
	for _, f := range strFields {
		v := obj.Get(f.key)
		if isAbsent(v) {
			continue
		}
		b, err := v.StringBytes()
		if err != nil {
			return record.Record{}, fmt.Errorf("key %q: expected string, got %s", f.key, v.Type())
		}
		*f.dst = string(b)
	}

	if v := obj.Get("time"); v != nil && v.Type() == fastjson.TypeString {
		rec.Timestamp = p.parseTime(string(v.GetStringBytes()))
	}

	rec.ResponseStatus = int(jsonNumber(obj.Get("response"), 32))
	rec.BytesSent = jsonNumber(obj.Get("bytes"), 64)

	return rec, nil
}

func (p *Parser) parseTime(s string) time.Time {
	ts, err := time.Parse(TimeLayout, s)
	if err != nil {
		return p.now()
	}
	return ts
}

func isAbsent(v *fastjson.Value) bool {
	return v == nil || v.Type() == fastjson.TypeNull
}

// jsonNumber accepts integer literals and digit-only strings.
func jsonNumber(v *fastjson.Value, bits int) int64 {
	if isAbsent(v) {
		return 0
	}
	switch v.Type() {
	case fastjson.TypeString:
		return coerceDigits(string(v.GetStringBytes()), bits)
	case fastjson.TypeNumber:
		return coerceDigits(string(v.MarshalTo(nil)), bits)
	default:
		return 0
	}
}

// coerceDigits parses s when it is made only of ASCII digits and fits in
// bits, and returns 0 for anything else.
func coerceDigits(s string, bits int) int64 {
	if s == "" {
		return 0
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0
		}
	}
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return 0
	}
	return n
}
