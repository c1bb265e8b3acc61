package parser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ehrlich-b/accesslog/internal/record"
	"github.com/google/go-cmp/cmp"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestParser() *Parser {
	return &Parser{Now: func() time.Time { return fixedNow }}
}

func TestParseCommonLogFormat(t *testing.T) {
	p := newTestParser()
	res := p.Parse(`127.0.0.1 - frank [10/Oct/2000:13:55:36 -0700] "GET /apache_pb.gif HTTP/1.0" 200 2326`)

	if !res.OK() {
		t.Fatalf("Parse skipped line: %v (%v)", res.Skip, res.Err)
	}
	if res.Format != FormatCommon {
		t.Errorf("Format = %v, want %v", res.Format, FormatCommon)
	}

	wantTime := time.Date(2000, 10, 10, 13, 55, 36, 0, time.FixedZone("", -7*3600))
	want := record.Record{
		Timestamp:      wantTime,
		RemoteIP:       "127.0.0.1",
		RemoteUser:     "frank",
		Request:        "GET /apache_pb.gif HTTP/1.0",
		ResponseStatus: 200,
		BytesSent:      2326,
		Referrer:       "-",
		Agent:          "-",
	}
	if !res.Record.Timestamp.Equal(wantTime) {
		t.Errorf("Timestamp = %v, want %v", res.Record.Timestamp, wantTime)
	}
	got := res.Record
	got.Timestamp = wantTime
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCommonLogFormatCoercion(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name       string
		line       string
		wantStatus int
		wantBytes  int64
		wantNow    bool
	}{
		{"dash bytes", `10.0.0.2 - - [01/Jan/2024:00:00:00 +0000] "GET / HTTP/1.1" 304 -`, 304, 0, false},
		{"dash status", `10.0.0.2 - - [01/Jan/2024:00:00:00 +0000] "GET / HTTP/1.1" - 12`, 0, 12, false},
		{"bad timestamp", `10.0.0.2 - - [yesterday] "GET / HTTP/1.1" 200 5`, 200, 5, true},
		{"combined suffix", `10.0.0.2 - bob [01/Jan/2024:00:00:00 +0000] "GET / HTTP/1.1" 200 5 "http://ref" "curl/8"`, 200, 5, false},
		{"status overflow", `10.0.0.2 - - [01/Jan/2024:00:00:00 +0000] "GET / HTTP/1.1" 99999999999 5`, 0, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Parse(tt.line)
			if !res.OK() {
				t.Fatalf("Parse skipped line: %v (%v)", res.Skip, res.Err)
			}
			if res.Record.ResponseStatus != tt.wantStatus {
				t.Errorf("ResponseStatus = %d, want %d", res.Record.ResponseStatus, tt.wantStatus)
			}
			if res.Record.BytesSent != tt.wantBytes {
				t.Errorf("BytesSent = %d, want %d", res.Record.BytesSent, tt.wantBytes)
			}
			if got := res.Record.Timestamp.Equal(fixedNow); got != tt.wantNow {
				t.Errorf("Timestamp = %v, fallback used = %v, want %v", res.Record.Timestamp, got, tt.wantNow)
			}
			if res.Record.Referrer != "-" || res.Record.Agent != "-" {
				t.Errorf("referrer/agent = %q/%q, want -/-", res.Record.Referrer, res.Record.Agent)
			}
		})
	}
}

func TestParseJSONCoercedResponse(t *testing.T) {
	p := newTestParser()
	res := p.Parse(`{"remote_ip":"10.0.0.1","response":"not-a-number"}`)

	if !res.OK() {
		t.Fatalf("Parse skipped line: %v (%v)", res.Skip, res.Err)
	}
	if res.Format != FormatJSON {
		t.Errorf("Format = %v, want %v", res.Format, FormatJSON)
	}

	want := record.New(fixedNow)
	want.RemoteIP = "10.0.0.1"
	if diff := cmp.Diff(want, res.Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestParseJSONFull(t *testing.T) {
	p := newTestParser()
	line := `{"remote_ip":"192.168.1.5","remote_user":"alice","time":"17/May/2015:08:05:32 +0000",` +
		`"request":"GET /downloads/product_1 HTTP/1.1","response":404,"bytes":"318",` +
		`"referrer":"-","agent":"Debian APT-HTTP/1.3 (0.8.16~exp12ubuntu10.21)"}`

	res := p.Parse(line)
	if !res.OK() {
		t.Fatalf("Parse skipped line: %v (%v)", res.Skip, res.Err)
	}

	want := record.Record{
		Timestamp:      time.Date(2015, 5, 17, 8, 5, 32, 0, time.UTC),
		RemoteIP:       "192.168.1.5",
		RemoteUser:     "alice",
		Request:        "GET /downloads/product_1 HTTP/1.1",
		ResponseStatus: 404,
		BytesSent:      318,
		Referrer:       "-",
		Agent:          "Debian APT-HTTP/1.3 (0.8.16~exp12ubuntu10.21)",
	}
	got := res.Record
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
	got.Timestamp = want.Timestamp
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestParseJSONDefaults(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name string
		line string
		want func(*record.Record)
	}{
		{"empty object", `{}`, func(*record.Record) {}},
		{"only agent", `{"agent":"curl/8.0"}`, func(r *record.Record) { r.Agent = "curl/8.0" }},
		{"null values", `{"remote_user":null,"response":null,"bytes":null}`, func(*record.Record) {}},
		{"unknown keys", `{"host":"example.com","status":200}`, func(*record.Record) {}},
		{"negative bytes", `{"bytes":-5}`, func(*record.Record) {}},
		{"fractional response", `{"response":200.5}`, func(*record.Record) {}},
		{"boolean response", `{"response":true}`, func(*record.Record) {}},
		{"numeric time", `{"time":1700000000}`, func(*record.Record) {}},
		{"bad time string", `{"time":"2024-01-01T00:00:00Z"}`, func(*record.Record) {}},
		{"integer response", `{"response":503,"bytes":0}`, func(r *record.Record) { r.ResponseStatus = 503 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Parse(tt.line)
			if !res.OK() {
				t.Fatalf("Parse skipped line: %v (%v)", res.Skip, res.Err)
			}
			want := record.New(fixedNow)
			tt.want(&want)
			if diff := cmp.Diff(want, res.Record); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseJSONTypeMismatch(t *testing.T) {
	p := newTestParser()
	res := p.Parse(`{"remote_ip":12345}`)

	if res.Skip != SkipInvalid {
		t.Fatalf("Skip = %v, want %v", res.Skip, SkipInvalid)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "remote_ip") {
		t.Errorf("Err = %v, want mention of remote_ip", res.Err)
	}
}

func TestParseBlank(t *testing.T) {
	p := newTestParser()
	for _, line := range []string{"", " ", "\t", "  \t  ", "\r"} {
		res := p.Parse(line)
		if res.Skip != SkipBlank {
			t.Errorf("Parse(%q).Skip = %v, want %v", line, res.Skip, SkipBlank)
		}
		if res.Err != nil {
			t.Errorf("Parse(%q).Err = %v, want nil", line, res.Err)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	p := newTestParser()
	lines := []string{
		"this is not a log line",
		`{"remote_ip": "10.0.0.1"`,
		`[1, 2, 3]`,
		`"just a string"`,
		`127.0.0.1 - frank 10/Oct/2000:13:55:36 -0700 GET / 200 5`,
	}
	for _, line := range lines {
		res := p.Parse(line)
		if res.Skip != SkipMalformed {
			t.Errorf("Parse(%q).Skip = %v, want %v", line, res.Skip, SkipMalformed)
		}
		if !errors.Is(res.Err, ErrMalformed) {
			t.Errorf("Parse(%q).Err = %v, want ErrMalformed", line, res.Err)
		}
	}
}

func TestCoerceDigits(t *testing.T) {
	tests := []struct {
		in   string
		bits int
		want int64
	}{
		{"0", 64, 0},
		{"200", 32, 200},
		{"2326", 64, 2326},
		{"", 64, 0},
		{"-", 64, 0},
		{"-5", 64, 0},
		{"+5", 64, 0},
		{"12a", 64, 0},
		{" 12", 64, 0},
		{"2147483648", 32, 0},
		{"2147483647", 32, 2147483647},
		{"99999999999999999999", 64, 0},
	}
	for _, tt := range tests {
		if got := coerceDigits(tt.in, tt.bits); got != tt.want {
			t.Errorf("coerceDigits(%q, %d) = %d, want %d", tt.in, tt.bits, got, tt.want)
		}
	}
}

func TestFormatString(t *testing.T) {
	if FormatJSON.String() != "json" || FormatCommon.String() != "common" || FormatUnknown.String() != "unknown" {
		t.Errorf("unexpected format names: %v %v %v", FormatJSON, FormatCommon, FormatUnknown)
	}
	if SkipMalformed.String() != "malformed" {
		t.Errorf("SkipMalformed.String() = %q", SkipMalformed.String())
	}
}
