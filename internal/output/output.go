// Package output renders requests and executions for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/tidwall/pretty"

	"github.com/sadopc/reqdeck/internal/core/history"
	"github.com/sadopc/reqdeck/internal/core/query"
	"github.com/sadopc/reqdeck/internal/core/request"
	"github.com/sadopc/reqdeck/internal/errdef"
)

// TimeFormat is used for absolute timestamps.
const TimeFormat = "2006-01-02 15:04:05"

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// PrintRequests lists requests, marking the selected one with '*'.
func PrintRequests(w io.Writer, reqs []request.Request, selected int64) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, "No requests. Create one with: reqdeck add <name>")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"", "ID", "Name", "Method", "URL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Name", WidthMax: 30, WidthMaxEnforcer: ellipsis},
		{Name: "URL", WidthMax: 60, WidthMaxEnforcer: ellipsis},
	})
	for _, r := range reqs {
		mark := ""
		if r.ID == selected {
			mark = "*"
		}
		t.AppendRow(table.Row{mark, r.ID, r.Name, r.Method, r.URL})
	}
	t.Render()
}

// PrintRequest shows one request with its parameters and latest response.
func PrintRequest(w io.Writer, r request.Request, latest *history.Entry) {
	fmt.Fprintf(w, "#%d %s\n", r.ID, r.Label())
	url := r.URL
	if url == "" {
		url = "(no url)"
	}
	fmt.Fprintf(w, "%s %s\n", r.Method, url)

	if params := r.Params(); len(params) > 0 {
		fmt.Fprintln(w)
		PrintParams(w, params)
	}
	if r.Body != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "--- Body ---")
		fmt.Fprintln(w, PrettyJSON(r.Body))
	}

	fmt.Fprintln(w)
	if latest == nil {
		fmt.Fprintln(w, "Not sent yet.")
		return
	}
	PrintEntry(w, *latest, true)
}

// PrintParams lists query parameters with their positional index.
func PrintParams(w io.Writer, params []query.Param) {
	if len(params) == 0 {
		fmt.Fprintln(w, "No query parameters.")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Key", "Value"})
	for i, p := range params {
		value := p.Value
		if !p.HasValue {
			value = "(none)"
		}
		t.AppendRow(table.Row{i, p.Key, value})
	}
	t.Render()
}

// PrintHistory lists executions newest first.
func PrintHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history.")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "When", "Method", "URL", "Status", "Time", "Size"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "URL", WidthMax: 50, WidthMaxEnforcer: ellipsis},
	})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.ID,
			e.CreatedAt.Local().Format(TimeFormat),
			e.Method,
			e.URL,
			StatusLine(e),
			FormatDuration(e.Duration()),
			humanize.IBytes(uint64(e.ResponseSize)),
		})
	}
	t.Render()
}

// PrintEntry prints a single execution. With verbose the body follows.
func PrintEntry(w io.Writer, e history.Entry, verbose bool) {
	fmt.Fprintf(w, "%s  %s  %s  (%s)\n",
		StatusLine(e),
		FormatDuration(e.Duration()),
		humanize.IBytes(uint64(e.ResponseSize)),
		humanize.Time(e.CreatedAt),
	)
	if !verbose {
		return
	}
	if e.Failed() {
		fmt.Fprintf(w, "Error: %s\n", e.Error)
		return
	}
	if e.ResponseBody != "" {
		fmt.Fprintln(w, "--- Response Body ---")
		fmt.Fprintln(w, PrettyJSON(e.ResponseBody))
	}
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// StatusLine renders "200 OK", "ERROR" for a call that got no response, and
// flags 4xx/5xx answers with a trailing "!".
func StatusLine(e history.Entry) string {
	outcome := e.Outcome()
	if outcome == errdef.CodeTransport {
		return "ERROR"
	}
	line := fmt.Sprintf("%d", e.StatusCode)
	if text := http.StatusText(e.StatusCode); text != "" {
		line += " " + text
	}
	if outcome == errdef.CodeRemote {
		line += " !"
	}
	return line
}

// PrettyJSON indents s when it is JSON and returns it unchanged otherwise.
func PrettyJSON(s string) string {
	if !json.Valid([]byte(s)) {
		return s
	}
	return strings.TrimRight(string(pretty.Pretty([]byte(s))), "\n")
}

// FormatDuration renders d the way execution timings are shown.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%d\u00b5s", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// ellipsis cuts s to max runes, marking the cut with "...".
func ellipsis(s string, max int) string {
	if utf8.RuneCountInString(s) <= max || max <= 3 {
		return s
	}
	return text.Trim(s, max-3) + "..."
}
