package engine

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-aql/aql"
)

// TableFormatter renders results as markdown tables.
type TableFormatter struct {
	// MaxWidth truncates longer cells; 0 disables truncation.
	MaxWidth int
	// TruncateString is appended to truncated cells.
	TruncateString string
}

// NewTableFormatter creates a formatter with default settings.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatResult formats the rows of res with one column per register,
// headed "$0", "$1" and so on.
func (tf *TableFormatter) FormatResult(res *Result) string {
	if res == nil || len(res.Rows) == 0 {
		return "_No rows_"
	}
	width := res.Width
	if width == 0 {
		width = len(res.Rows[0])
	}

	out := &strings.Builder{}
	alignment := make([]tw.Align, width)
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(out,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)

	headers := make([]string, width)
	for i := range headers {
		headers[i] = fmt.Sprintf("$%d", i)
	}
	table.Header(headers)

	for _, row := range res.Rows {
		cells := make([]string, width)
		for j := range cells {
			if j < len(row) {
				cells[j] = tf.formatValue(row[j])
			}
		}
		table.Append(cells)
	}
	table.Render()

	out.WriteString(fmt.Sprintf("\n_%d rows_\n", len(res.Rows)))
	if res.Skipped > 0 {
		out.WriteString(fmt.Sprintf("_%d skipped_\n", res.Skipped))
	}
	return out.String()
}

func (tf *TableFormatter) formatValue(v aql.Value) string {
	s := aql.FormatValue(v)
	if tf.MaxWidth > 0 && len(s) > tf.MaxWidth {
		cut := tf.MaxWidth - len(tf.TruncateString)
		if cut < 0 {
			cut = 0
		}
		s = s[:cut] + tf.TruncateString
	}
	return s
}
