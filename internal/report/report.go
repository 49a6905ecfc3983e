// Package report renders corpus statistics, run history and extracted
// documents for the command line.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/goccy/go-yaml"

	"github.com/ehr/cdastats/internal/domain/analysis"
	"github.com/ehr/cdastats/internal/platform/ccda"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Formats lists the accepted --format values.
var Formats = []string{FormatTable, FormatJSON, FormatYAML}

// Renderer writes values in one output format.
type Renderer struct {
	w      io.Writer
	format string

	heading *color.Color
	label   *color.Color
	failure *color.Color
}

// New returns a renderer for format. Color is applied to tables only, and
// only when color.NoColor is false.
func New(w io.Writer, format string) (*Renderer, error) {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
	return &Renderer{
		w:       w,
		format:  format,
		heading: color.New(color.FgCyan, color.Bold),
		label:   color.New(color.FgWhite, color.Bold),
		failure: color.New(color.FgRed),
	}, nil
}

// encode handles the structured formats; it reports false for tables.
func (r *Renderer) encode(v interface{}) (bool, error) {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case FormatYAML:
		out, err := yaml.MarshalWithOptions(v, yaml.UseJSONMarshaler())
		if err != nil {
			return true, fmt.Errorf("encode yaml: %w", err)
		}
		_, err = r.w.Write(out)
		return true, err
	}
	return false, nil
}

// Statistics renders a statistics summary.
func (r *Renderer) Statistics(stats *analysis.Statistics) error {
	if done, err := r.encode(stats); done {
		return err
	}

	r.heading.Fprintln(r.w, "Corpus statistics")
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	r.row(tw, "Documents", stats.TotalDocuments)
	r.row(tw, "Patients", stats.TotalPatients)
	r.row(tw, "Average age", fmt.Sprintf("%.1f", stats.AverageAge))
	r.row(tw, "Processing time", fmt.Sprintf("%d ms", stats.ProcessingTimeMS))
	tw.Flush()

	r.heading.Fprintln(r.w, "\nGender distribution")
	tw = tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	genders := make([]string, 0, len(stats.GenderDistribution))
	for g := range stats.GenderDistribution {
		genders = append(genders, g)
	}
	sort.Strings(genders)
	for _, g := range genders {
		r.row(tw, g, stats.GenderDistribution[g])
	}
	tw.Flush()

	r.ranked("Top diagnoses", stats.TopDiagnoses)
	r.ranked("Top medications", stats.TopMedications)
	return nil
}

func (r *Renderer) ranked(title string, rows []analysis.RankedCount) {
	r.heading.Fprintf(r.w, "\n%s\n", title)
	if len(rows) == 0 {
		fmt.Fprintln(r.w, "  (none)")
		return
	}
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	for i, row := range rows {
		fmt.Fprintf(tw, "  %d.\t%s\t%d\n", i+1, row.Name, row.Count)
	}
	tw.Flush()
}

func (r *Renderer) row(tw io.Writer, label string, value interface{}) {
	fmt.Fprintf(tw, "  %s\t%v\n", r.label.Sprint(label), value)
}

// Batch renders a batch outcome: the statistics plus any failures.
func (r *Renderer) Batch(report *analysis.BatchReport) error {
	if done, err := r.encode(report); done {
		return err
	}
	if err := r.Statistics(&report.Statistics); err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		r.heading.Fprintf(r.w, "\nFailed documents (%d)\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Fprintf(r.w, "  %s\n", r.failure.Sprint(f.Error))
		}
	}
	return nil
}

// Documents renders extracted documents.
func (r *Renderer) Documents(docs []*ccda.Document) error {
	if done, err := r.encode(docs); done {
		return err
	}
	r.heading.Fprintln(r.w, "\nDocuments")
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  FILE\tGENDER\tAGE\tDIAGNOSES\tMEDICATIONS")
	for _, d := range docs {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
			d.FileName,
			deref(d.Patient.Gender),
			derefInt(d.Patient.Age),
			joinDiagnoses(d.Diagnoses),
			joinMedications(d.Medications))
	}
	return tw.Flush()
}

// Runs renders the run history.
func (r *Renderer) Runs(runs []*analysis.Run, total int) error {
	if done, err := r.encode(runs); done {
		return err
	}
	r.heading.Fprintf(r.w, "Analysis runs (%d of %d)\n", len(runs), total)
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tSOURCE\tSTARTED\tFILES\tPARSED\tFAILED\tDURATION")
	for _, run := range runs {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%d\t%d\t%d ms\n",
			run.ID, run.Source, run.StartedAt.Format("2006-01-02 15:04:05"),
			run.FilesTotal, run.FilesParsed, run.FilesFailed, run.DurationMS)
	}
	return tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func derefInt(i *int) string {
	if i == nil {
		return "-"
	}
	return fmt.Sprint(*i)
}

func joinDiagnoses(dx []ccda.Diagnosis) string {
	if len(dx) == 0 {
		return "-"
	}
	names := make([]string, len(dx))
	for i, d := range dx {
		names[i] = d.Name
	}
	return strings.Join(names, "; ")
}

func joinMedications(meds []ccda.Medication) string {
	if len(meds) == 0 {
		return "-"
	}
	names := make([]string, len(meds))
	for i, m := range meds {
		names[i] = m.Name
	}
	return strings.Join(names, "; ")
}
