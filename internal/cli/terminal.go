package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ehrlich-b/accesslog/internal/ingest"
	"github.com/ehrlich-b/accesslog/internal/storage"
	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// maxShownErrors is how many skipped lines PrintSummary lists.
const maxShownErrors = 10

// Terminal provides formatted output for load and query commands.
// Colors are emitted only when the output is a terminal.
type Terminal struct {
	out   io.Writer
	width int
	color bool
}

// NewTerminal creates a terminal output helper.
func NewTerminal(out io.Writer) *Terminal {
	t := &Terminal{
		out:   out,
		width: 80, // Default width
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.color = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 && w < t.width {
			t.width = w
		}
	}
	return t
}

// c wraps s in the color code when colors are enabled.
func (t *Terminal) c(code, s string) string {
	if !t.color {
		return s
	}
	return code + s + colorReset
}

// BatchCommitted prints a progress line. It implements ingest.Observer.
func (t *Terminal) BatchCommitted(size, processed int) {
	fmt.Fprintf(t.out, "%s processed %s records %s\n",
		t.c(colorCyan, "›"),
		humanize.Comma(int64(processed)),
		t.c(colorDim, fmt.Sprintf("(+%s)", humanize.Comma(int64(size)))))
}

// PrintLoadStart prints the load banner.
func (t *Terminal) PrintLoadStart(location, driver string) {
	fmt.Fprintln(t.out)
	t.printLine("━")
	fmt.Fprintf(t.out, "%s\n", t.c(colorBold+colorCyan, "  LOADING ACCESS LOGS"))
	t.printLine("─")
	fmt.Fprintf(t.out, "  %s → %s\n", t.c(colorBold, location), driver)
	t.printLine("━")
}

// PrintSummary prints the outcome of a load.
func (t *Terminal) PrintSummary(sum ingest.Summary) {
	fmt.Fprintln(t.out)
	t.printLine("━")

	switch sum.State {
	case ingest.StateAlreadyLoaded:
		fmt.Fprintf(t.out, "%s\n", t.c(colorBold+colorYellow, "  • LOGS ALREADY LOADED, SKIPPED"))
	case ingest.StateCompleted:
		fmt.Fprintf(t.out, "%s  %s\n",
			t.c(colorBold+colorGreen, "  ✓ LOAD COMPLETE"),
			t.c(colorDim, formatDuration(sum.Duration())))
	default:
		fmt.Fprintf(t.out, "%s  %s\n",
			t.c(colorBold+colorRed, "  ✗ LOAD ABORTED"),
			t.c(colorDim, formatDuration(sum.Duration())))
	}

	if sum.State != ingest.StateAlreadyLoaded {
		fmt.Fprintf(t.out, "  processed %s  skipped %s  lines %s  batches %d\n",
			humanize.Comma(int64(sum.Processed)),
			humanize.Comma(int64(sum.Skipped)),
			humanize.Comma(int64(sum.Lines)),
			sum.Batches)
		if sum.Digest != "" {
			fmt.Fprintf(t.out, "  %s\n", t.c(colorDim, "sha3-256 "+sum.Digest))
		}
	}

	if len(sum.Errors) > 0 {
		t.printLine("─")
		for i, e := range sum.Errors {
			if i == maxShownErrors {
				fmt.Fprintf(t.out, "  %s\n", t.c(colorDim, fmt.Sprintf("… and %d more", sum.Skipped-maxShownErrors)))
				break
			}
			fmt.Fprintf(t.out, "  %s %s\n", t.c(colorYellow, fmt.Sprintf("line %d:", e.Line)), truncate(fmt.Sprintf("%s: %v", e.Reason, e.Err), t.width-14))
		}
	}

	t.printLine("━")
	fmt.Fprintln(t.out)
}

// PrintStatusResult prints records matching a status query as a table.
func (t *Terminal) PrintStatusResult(res *storage.StatusResult) {
	fmt.Fprintf(t.out, "%s %s\n",
		t.c(colorBold, fmt.Sprintf("Response %d:", res.Status)),
		humanize.Comma(res.Count)+" matching entries")
	if len(res.Records) == 0 {
		return
	}

	t.printLine("─")
	for _, r := range res.Records {
		fmt.Fprintf(t.out, "%s  %-15s  %-8s  %s  %s\n",
			t.c(colorDim, r.Timestamp.Format(time.DateTime)),
			r.RemoteIP,
			humanize.Bytes(uint64(r.BytesSent)),
			truncate(r.Request, t.width/2),
			t.c(colorDim, r.RemoteUser))
	}
	if int64(len(res.Records)) < res.Count {
		fmt.Fprintf(t.out, "%s\n", t.c(colorDim, fmt.Sprintf("… %s more not shown", humanize.Comma(res.Count-int64(len(res.Records))))))
	}
}

// printLine prints a horizontal line of the given character.
func (t *Terminal) printLine(char string) {
	fmt.Fprintln(t.out, t.c(colorDim, strings.Repeat(char, t.width)))
}

func truncate(s string, n int) string {
	if n <= 1 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, mins)
}
