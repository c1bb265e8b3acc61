package cli

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ehrlich-b/accesslog/internal/ingest"
	"github.com/ehrlich-b/accesslog/internal/parser"
	"github.com/ehrlich-b/accesslog/internal/record"
	"github.com/ehrlich-b/accesslog/internal/storage"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{12*time.Second + 345*time.Millisecond, "12.3s"},
		{60 * time.Second, "1m0s"},
		{2*time.Minute + 15*time.Second, "2m15s"},
		{1*time.Hour + 5*time.Minute, "1h5m"},
	}

	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			result := formatDuration(tt.d)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.d, result, tt.expected)
			}
		})
	}
}

func TestTerminalNoColorForBuffers(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)
	term.BatchCommitted(1000, 12000)

	output := buf.String()
	if strings.Contains(output, "\033[") {
		t.Errorf("expected no ANSI codes when not a terminal, got %q", output)
	}
	if !strings.Contains(output, "processed 12,000 records") || !strings.Contains(output, "(+1,000)") {
		t.Errorf("unexpected progress line %q", output)
	}
}

func TestPrintSummaryCompleted(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	start := time.Now()
	term.PrintSummary(ingest.Summary{
		State:     ingest.StateCompleted,
		Processed: 2500,
		Skipped:   1,
		Lines:     2501,
		Batches:   3,
		Digest:    "abc123",
		Errors: []ingest.LineError{
			{Line: 17, Reason: parser.SkipMalformed, Err: parser.ErrMalformed},
		},
		Started:  start,
		Finished: start.Add(1500 * time.Millisecond),
	})

	output := buf.String()
	for _, want := range []string{
		"LOAD COMPLETE",
		"1.5s",
		"processed 2,500",
		"skipped 1",
		"batches 3",
		"sha3-256 abc123",
		"line 17: malformed: malformed line",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestPrintSummaryAlreadyLoaded(t *testing.T) {
	var buf bytes.Buffer
	NewTerminal(&buf).PrintSummary(ingest.Summary{State: ingest.StateAlreadyLoaded})

	output := buf.String()
	if !strings.Contains(output, "ALREADY LOADED") {
		t.Errorf("expected already-loaded banner, got:\n%s", output)
	}
	if strings.Contains(output, "processed") {
		t.Errorf("already-loaded summary should not print counts:\n%s", output)
	}
}

func TestPrintSummaryAbortedErrorsCapped(t *testing.T) {
	errs := make([]ingest.LineError, 0, 15)
	for i := 0; i < 15; i++ {
		errs = append(errs, ingest.LineError{Line: i + 1, Reason: parser.SkipInvalid, Err: errors.New("bad")})
	}

	var buf bytes.Buffer
	NewTerminal(&buf).PrintSummary(ingest.Summary{State: ingest.StateAborted, Skipped: 40, Errors: errs})

	output := buf.String()
	if !strings.Contains(output, "LOAD ABORTED") {
		t.Errorf("expected aborted banner, got:\n%s", output)
	}
	if strings.Contains(output, "line 11:") {
		t.Errorf("expected at most %d listed errors:\n%s", maxShownErrors, output)
	}
	if !strings.Contains(output, fmt.Sprintf("… and %d more", 40-maxShownErrors)) {
		t.Errorf("expected overflow note, got:\n%s", output)
	}
}

func TestPrintStatusResult(t *testing.T) {
	r := record.New(time.Date(2000, 10, 10, 13, 55, 36, 0, time.UTC))
	r.RemoteIP = "127.0.0.1"
	r.RemoteUser = "frank"
	r.Request = "GET /apache_pb.gif HTTP/1.0"
	r.ResponseStatus = 200
	r.BytesSent = 2326

	var buf bytes.Buffer
	NewTerminal(&buf).PrintStatusResult(&storage.StatusResult{Status: 200, Count: 3, Records: []record.Record{r}})

	output := buf.String()
	for _, want := range []string{
		"Response 200: 3 matching entries",
		"2000-10-10 13:55:36",
		"127.0.0.1",
		"2.3 kB",
		"GET /apache_pb.gif HTTP/1.0",
		"frank",
		"… 2 more not shown",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a long request line", 7); got != "a long…" {
		t.Errorf("truncate long = %q", got)
	}
}
