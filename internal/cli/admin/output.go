package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/jobs"
	"github.com/cloo-solutions/reviewpulse/internal/service"
	"github.com/cloo-solutions/reviewpulse/internal/storage"
	"github.com/spf13/cobra"
)

const (
	outputText = "text"
	outputJSON = "json"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", outputText, "Output format (text or json)")
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case outputText, outputJSON:
		return format, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected text or json)", format)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonBytes))
	return err
}

func printEmbeddingReport(w io.Writer, format string, r *service.EmbeddingReport) error {
	if r == nil {
		return nil
	}
	if format == outputJSON {
		return writeJSON(w, r)
	}
	fmt.Fprintf(w, "embed %s: seen=%d inserted=%d skipped=%d failed=%d\n", r.RunID, r.Seen, r.Inserted, r.Skipped, r.Failed)
	return nil
}

func printClusteringReport(w io.Writer, format string, r *service.ClusteringReport) error {
	if r == nil {
		return nil
	}
	if format == outputJSON {
		return writeJSON(w, r)
	}
	fmt.Fprintf(w, "cluster %s: groups=%d skipped=%d failed=%d clustered=%d bad_vectors=%d\n",
		r.RunID, r.GroupsSeen, r.GroupsSkipped, r.GroupsFailed, r.Clustered, r.BadVectors)
	for _, g := range r.Groups {
		switch {
		case g.Error != "":
			fmt.Fprintf(w, "  %s: failed: %s\n", g.Group, g.Error)
		case g.Skipped:
			fmt.Fprintf(w, "  %s: skipped (%d valid vectors)\n", g.Group, g.Fetched-g.BadVectors)
		default:
			fmt.Fprintf(w, "  %s: k=%d clustered=%d\n", g.Group, g.K, g.Clustered)
		}
	}
	return nil
}

func printInsightReport(w io.Writer, format string, r *service.InsightReport) error {
	if r == nil {
		return nil
	}
	if format == outputJSON {
		return writeJSON(w, r)
	}
	mode := "synthesis"
	if r.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(w, "insights %s (%s): window %s..%s groups=%d synthesized=%d skipped=%d failed=%d inserted=%d\n",
		r.RunID, mode, r.WindowStart.Format("2006-01-02"), r.WindowEnd.Format("2006-01-02"),
		r.GroupsSeen, r.GroupsSynthesized, r.GroupsSkipped, r.GroupsFailed, r.Inserted)

	if r.DryRun {
		for _, t := range r.Trends {
			pct := "n/a"
			if t.DeltaPct != nil {
				pct = fmt.Sprintf("%.2f%%", *t.DeltaPct)
			}
			fmt.Fprintf(w, "  %s cluster %d: last_7d=%d prev_7d=%d delta=%d (%s) %s\n",
				t.Key.Group, t.Key.Label, t.CurrentCount, t.PreviousCount, t.Delta, pct, t.Trend)
		}
		return nil
	}

	for _, g := range r.Groups {
		switch {
		case g.Error != "":
			fmt.Fprintf(w, "  %s: failed: %s\n", g.Group, g.Error)
		case g.Skipped:
			fmt.Fprintf(w, "  %s: skipped\n", g.Group)
		default:
			fmt.Fprintf(w, "  %s: clusters=%d inserted=%d\n", g.Group, g.Clusters, g.Inserted)
		}
	}
	return nil
}

func printPipelineReport(w io.Writer, format string, r *jobs.PipelineReport) error {
	if r == nil {
		return nil
	}
	if format == outputJSON {
		return writeJSON(w, r)
	}
	if err := printEmbeddingReport(w, format, r.Embedding); err != nil {
		return err
	}
	if err := printClusteringReport(w, format, r.Clustering); err != nil {
		return err
	}
	return printInsightReport(w, format, r.Insights)
}

func printHistory(w io.Writer, format, group string, history []time.Time) error {
	if format == outputJSON {
		return writeJSON(w, struct {
			Group       string      `json:"group"`
			Generations []time.Time `json:"generations"`
		}{Group: group, Generations: history})
	}
	if len(history) == 0 {
		fmt.Fprintf(w, "%s: no archived generations\n", group)
		return nil
	}
	for _, at := range history {
		fmt.Fprintln(w, at.UTC().Format(time.RFC3339Nano))
	}
	return nil
}

func printArchivedGeneration(w io.Writer, format string, doc *storage.ArchivedGeneration) error {
	if format == outputJSON {
		return writeJSON(w, doc)
	}
	fmt.Fprintf(w, "%s generated %s (%s), window %s..%s\n", doc.Group,
		doc.GeneratedAt.Format(time.RFC3339), doc.ClusteringModel,
		doc.WindowStart.Format("2006-01-02"), doc.WindowEnd.Format("2006-01-02"))
	for _, c := range doc.Clusters {
		fmt.Fprintf(w, "  cluster %d [%s, %s impact] %s: %s\n", c.ClusterID, c.Trend, c.Impact, c.PrimaryIssue, c.Summary)
	}
	return nil
}
