package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"brkdash/internal/configdoc/model"
	"brkdash/internal/services"

	"golang.org/x/term"
)

const (
	ansiReset = "\033[0m"
	ansiGreen = "\033[32m"
	ansiRed   = "\033[31m"
	ansiDim   = "\033[2m"
)

// useColor reports whether ANSI colours should be written to w. It respects
// NO_COLOR, CLICOLOR_FORCE and CLICOLOR, and otherwise colours terminals only.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func paint(w io.Writer, color, s string) string {
	if !useColor(w) {
		return s
	}
	return color + s + ansiReset
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printDocument writes a stored document indented, regardless of how
// it was formatted on disk.
func printDocument(w io.Writer, doc json.RawMessage) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return printJSON(w, v)
}

func printOK(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", paint(w, ansiGreen, "✓"), fmt.Sprintf(format, args...))
}

func printBackupTable(w io.Writer, backups []model.BackupRecord) {
	if len(backups) == 0 {
		fmt.Fprintln(w, "No backups")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILENAME\tTIMESTAMP\tSIZE")
	for _, b := range backups {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Filename, b.Timestamp.UTC().Format("2006-01-02 15:04:05.000"), humanSize(b.Size))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d backup(s)\n", len(backups))
}

func printDeleteResults(w io.Writer, resp *model.DeleteBackupsResponse) {
	for _, r := range resp.Results {
		if r.Success {
			fmt.Fprintf(w, "%s %s\n", paint(w, ansiGreen, "deleted"), r.Filename)
		} else {
			fmt.Fprintf(w, "%s %s: %s\n", paint(w, ansiRed, "failed "), r.Filename, r.Error)
		}
	}
	fmt.Fprintln(w, resp.Message)
}

func printServiceStatus(w io.Writer, status *services.Status) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tSTATE\tLATENCY\tURL")
	for _, s := range status.Services {
		state := paint(w, ansiGreen, "up")
		if !s.Up {
			state = paint(w, ansiRed, "down")
			if s.Error != "" {
				state += " " + paint(w, ansiDim, "("+s.Error+")")
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%dms\t%s\n", s.Name, state, s.LatencyMS, s.URL)
	}
	tw.Flush()
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
