// package formatter renders task lists and details as text tables, JSON, CSV and Markdown
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/status"
	"github.com/desertthunder/upsync/internal/tasks"
)

// TimeLayout is used for every timestamp printed by this package.
const TimeLayout = "2006-01-02 15:04"

// Format selects an output renderer.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// Formats lists the accepted values of the --format flag.
var Formats = []Format{FormatTable, FormatJSON, FormatCSV, FormatMarkdown}

// ParseFormat resolves a format name. "md" is accepted for Markdown and the empty string selects the table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", string(FormatTable), "text":
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatCSV):
		return FormatCSV, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: format %q (want table, json, csv or markdown)", shared.ErrInvalidFlag, s)
}

// RenderPage renders one page of a task list in format. counts feeds the Markdown summary.
func RenderPage(format Format, page tasks.Page, counts map[status.Category]int) ([]byte, error) {
	switch format {
	case FormatJSON:
		return shared.MarshalJSON(page, true)
	case FormatCSV:
		return ExportToCSV(page.Items)
	case FormatMarkdown:
		return ExportToMarkdown(page, counts)
	default:
		return ExportToText(page)
	}
}

// ExportToCSV converts tasks to CSV with columns: ID, Title, External Ref, Code, Status, Category, Created, Updated
func ExportToCSV(items []models.TaskInstance) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "External Ref", "Code", "Status", "Category", "Created", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, t := range items {
		c := status.Classify(t.StatusCode)
		record := []string{
			t.TaskID,
			t.Title,
			t.ExternalRef,
			t.StatusCode,
			c.Label,
			string(c.Category),
			FormatTime(t.CreatedAt),
			FormatTime(t.UpdatedAt),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a page of tasks to a Markdown document with a per-category summary.
func ExportToMarkdown(page tasks.Page, counts map[status.Category]int) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Tasks\n\n")
	if counts != nil {
		fmt.Fprintf(&buf, "**Total**: %d\n\n", counts[status.All])
		for _, c := range status.Categories {
			fmt.Fprintf(&buf, "- %s: %d\n", CategoryTitle(c), counts[c])
		}
		if n := counts[status.Unknown]; n > 0 {
			fmt.Fprintf(&buf, "- Unknown: %d\n", n)
		}
		buf.WriteString("\n")
	}

	fmt.Fprintf(&buf, "## %s (page %d of %d)\n\n", CategoryTitle(page.Filter), page.Page, page.Pages)
	if len(page.Items) == 0 {
		buf.WriteString("_No tasks._\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| ID | Title | Status | Updated |\n")
	buf.WriteString("|----|-------|--------|---------|\n")
	for _, t := range page.Items {
		fmt.Fprintf(&buf, "| %s | %s | %s | %s |\n",
			t.TaskID, escapeCell(t.Title), status.Classify(t.StatusCode).Label, FormatTime(t.UpdatedAt))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a page of tasks to an aligned plain text table.
func ExportToText(page tasks.Page) ([]byte, error) {
	var buf bytes.Buffer

	if len(page.Items) == 0 {
		fmt.Fprintf(&buf, "No %s tasks.\n", strings.ToLower(CategoryTitle(page.Filter)))
		return buf.Bytes(), nil
	}

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tUPDATED")
	for _, t := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.TaskID, Truncate(t.Title, 48), status.Classify(t.StatusCode).Label, FormatTime(t.UpdatedAt))
	}
	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write table: %w", err)
	}

	fmt.Fprintf(&buf, "\nPage %d of %d, %d %s tasks\n", page.Page, page.Pages, page.Total, strings.ToLower(CategoryTitle(page.Filter)))
	return buf.Bytes(), nil
}

// DetailToText renders a task with its progress and step chain.
func DetailToText(d *models.TaskDetail) []byte {
	var buf bytes.Buffer
	c := status.Classify(d.StatusCode)

	fmt.Fprintf(&buf, "Task:        %s\n", d.TaskID)
	fmt.Fprintf(&buf, "Title:       %s\n", d.Title)
	if d.GeneratedName != "" {
		fmt.Fprintf(&buf, "Upload name: %s\n", d.GeneratedName)
	}
	fmt.Fprintf(&buf, "Status:      %s (%s)\n", c.Label, d.StatusCode)
	if c.Description != "" {
		fmt.Fprintf(&buf, "             %s\n", c.Description)
	}
	if d.SourceURL != "" {
		fmt.Fprintf(&buf, "Source:      %s\n", d.SourceURL)
	}
	if d.ExternalResultRef != "" {
		fmt.Fprintf(&buf, "Uploaded as: %s\n", d.ExternalResultRef)
	}
	fmt.Fprintf(&buf, "Created:     %s\n", FormatTime(d.CreatedAt))
	fmt.Fprintf(&buf, "Updated:     %s\n", FormatTime(d.UpdatedAt))

	p := d.Progress
	if p.TotalSteps > 0 {
		fmt.Fprintf(&buf, "Progress:    %s %.0f%% (%d/%d steps", ProgressBar(p.Percentage, 20), p.Percentage, p.CompletedSteps, p.TotalSteps)
		if p.FailedSteps > 0 {
			fmt.Fprintf(&buf, ", %d failed", p.FailedSteps)
		}
		buf.WriteString(")\n")
		if p.IsRunning && p.CurrentStep != "" {
			fmt.Fprintf(&buf, "Running:     %s\n", status.StepLabel(p.CurrentStep))
		}
	}

	if len(d.Steps) == 0 {
		return buf.Bytes()
	}

	buf.WriteString("\n")
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTEP\tSTATUS\tDURATION\tNOTE")
	for _, s := range d.Steps {
		note := s.ErrorMessage
		if s.Retryable {
			note = strings.TrimSpace("retryable " + note)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.Order, status.StepLabel(s.StepName), status.StepStatusLabel(s.Status), FormatDuration(s.Duration), note)
	}
	tw.Flush()

	return buf.Bytes()
}

// FilesToText renders the artifact listing of a task.
func FilesToText(f *models.TaskFiles) []byte {
	var buf bytes.Buffer

	if f.Directory != "" {
		fmt.Fprintf(&buf, "Directory: %s\n\n", f.Directory)
	}
	if len(f.Files) == 0 {
		buf.WriteString("No files yet.\n")
		return buf.Bytes()
	}

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tSIZE\tMODIFIED")
	for _, file := range f.Files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", file.Name, file.Type, FormatSize(file.Size), FormatTime(file.Modified))
	}
	tw.Flush()

	return buf.Bytes()
}

// WriteExport writes data to path, or to stdout when path is empty or "-".
func WriteExport(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

// CategoryTitle returns the display name of a category.
func CategoryTitle(c status.Category) string {
	switch c {
	case status.All, "":
		return "All"
	case status.Pending:
		return "Pending"
	case status.Preparing:
		return "Processing"
	case status.Ready:
		return "Ready"
	case status.Uploading:
		return "Uploading"
	case status.Completed:
		return "Completed"
	case status.Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// FormatTime prints t in local time, or "-" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(TimeLayout)
}

// FormatDuration prints d as "1h02m03s", "2m05s" or "42s". Zero prints "-".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)

	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatSize prints a byte count using binary units.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// ProgressBar draws a width-cell bar for pct in [0, 100].
func ProgressBar(pct float64, width int) string {
	pct = max(0, min(100, pct))
	filled := int(pct / 100 * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 1 {
		return s
	}
	return string(r[:n-1]) + "…"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
