// Package report renders a human-readable summary of a finished crawl.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/aluiziolira/go-scrape-chocolate/models"
)

// Summary is everything the report shows about one run.
type Summary struct {
	Result     *models.ScraperResult
	Written    int64
	Issues     map[string]int
	OutputFile string
	Err        error
}

// WriteMarkdown renders s as a Markdown document to w.
func WriteMarkdown(w io.Writer, s Summary) error {
	if s.Result == nil {
		return fmt.Errorf("report: nil crawl result")
	}
	md := markdown.NewMarkdown(w)

	md.H1("Crawl Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Started", s.Result.StartTime.Format(time.RFC3339)},
			{"Duration", s.Result.EndTime.Sub(s.Result.StartTime).Round(time.Millisecond).String()},
			{"Stop reason", string(s.Result.StopReason)},
			{"Last page", orDash(s.Result.LastURL)},
			{"Output", orDash(s.OutputFile)},
		},
	})
	md.PlainText("")

	md.H2("Counts")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Pages parsed", strconv.Itoa(s.Result.PageCount)},
			{"Requests", strconv.Itoa(s.Result.RequestCount)},
			{"Records emitted", strconv.Itoa(s.Result.TotalCount)},
			{"Records written", strconv.FormatInt(s.Written, 10)},
			{"Errors", strconv.Itoa(s.Result.ErrorCount)},
		},
	})
	md.PlainText("")

	switch {
	case s.Err != nil:
		md.Cautionf("Crawl stopped on a fatal error: %v", s.Err)
	case s.Result.StopReason == models.StopCycle || s.Result.StopReason == models.StopMaxPages:
		md.Warningf("Pagination did not run to the end (%s).", s.Result.StopReason)
	default:
		md.Tip("Pagination chain exhausted.")
	}
	md.PlainText("")

	if len(s.Result.ErrorsByType) > 0 {
		md.H2("Errors by type")
		md.PlainText("")
		md.Table(markdown.TableSet{Header: []string{"Type", "Count"}, Rows: countRows(s.Result.ErrorsByType)})
		md.PlainText("")
	}
	if len(s.Issues) > 0 {
		md.H2("Record issues")
		md.PlainText("")
		md.Table(markdown.TableSet{Header: []string{"Issue", "Count"}, Rows: countRows(s.Issues)})
		md.PlainText("")
	}

	return md.Build()
}

func countRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(counts[k])})
	}
	return rows
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
