package annotations

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter renders events for humans, one line per event.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter writing to w (stdout if nil).
// Color is used when w is a terminal.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd()) && !color.NoColor
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle prints the event; use it as a Handler.
func (f *OutputFormatter) Handle(event Event) {
	if out := f.Format(event); out != "" {
		fmt.Fprintln(f.writer, out)
	}
}

// Format converts an event to a display string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case QueryInvoked:
		return fmt.Sprintf("%s %s Query %v: %v", latency,
			f.colorize("===", color.FgYellow), event.Data["query.id"], event.Data["plan"])

	case QueryComplete:
		if errMsg, failed := event.Data["error"]; failed {
			return fmt.Sprintf("%s %s Query failed: %v", latency, f.colorize("✗", color.FgRed), errMsg)
		}
		return fmt.Sprintf("%s %s Query done with %s and %s",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("rows", event.Data["rows"]),
			f.colorizeCount("skipped", event.Data["skipped"]))

	case QueryWaiting:
		return fmt.Sprintf("%s %s suspended, waiting for upstream", latency, f.colorize("…", color.FgCyan))

	case QueryKilled:
		return fmt.Sprintf("%s %s Query killed", latency, f.colorize("✗", color.FgRed))

	case BlockExecute:
		return fmt.Sprintf("%s %s %s → %s (%s, skipped %v)",
			latency,
			f.colorize(fmt.Sprint(event.Data["block"]), color.FgBlue),
			event.Data["call"],
			event.Data["state"],
			f.colorizeCount("rows", event.Data["rows"]),
			event.Data["skipped"])

	case BlockWaiting:
		return fmt.Sprintf("%s %s WAITING", latency, f.colorize(fmt.Sprint(event.Data["block"]), color.FgBlue))

	case BlockDone:
		return fmt.Sprintf("%s %s DONE with %s", latency,
			f.colorize(fmt.Sprint(event.Data["block"]), color.FgBlue), f.colorizeCount("rows", event.Data["rows"]))

	case ErrorResourceLimit, ErrorUpstream, ErrorInternal:
		return fmt.Sprintf("%s %s %s: %v", latency, f.colorize("✗", color.FgRed), event.Name, event.Data["error"])
	}

	return fmt.Sprintf("%s %s %s", latency, event.Name, formatData(event.Data))
}

// formatLatency renders a duration as [XXµs] or [X.Xms], colored by size.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)
	if !f.useColor {
		return s
	}
	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

func (f *OutputFormatter) colorizeCount(label string, count interface{}) string {
	text := fmt.Sprintf("%v %s", count, label)
	if !f.useColor {
		return text
	}
	switch label {
	case "rows":
		return color.MagentaString(text)
	case "skipped":
		return color.CyanString(text)
	}
	return text
}

func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func formatData(data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return strings.Join(parts, " ")
}

// isTerminal treats stdout and stderr as terminals.
func isTerminal(fd uintptr) bool {
	return fd == uintptr(1) || fd == uintptr(2)
}
