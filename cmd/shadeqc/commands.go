package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shadeqc/internal"
	"shadeqc/internal/analytics"
	"shadeqc/internal/colour"
	"shadeqc/internal/config"
	"shadeqc/internal/connectors"
	"shadeqc/internal/pipeline"
	"shadeqc/internal/source"
	"shadeqc/internal/storage"
)

// loadRecords reads a local file, or the configured source when input is
// empty or a URL.
func loadRecords(ctx context.Context, cfg config.Config, input, inputType string) ([]internal.InspectionRecord, error) {
	n := pipeline.Normalizer{Prefix: cfg.SourceIDPrefix}
	if input == "" {
		input = cfg.SourceLocation
	}
	if source.IsRemote(input) {
		rows, _, err := source.NewFetcher(cfg).Load(ctx, input)
		if err != nil {
			return nil, err
		}
		return n.Normalize(rows), nil
	}
	return pipeline.LoadRecordsFromInput(inputType, input, n)
}

func normalizeCmd(cfg *config.Config) *cobra.Command {
	var input, inputType, format string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize an inspection file and print the records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := loadRecords(cmd.Context(), *cfg, input, inputType)
			if err != nil {
				return err
			}
			if format == "csv" {
				return pipeline.WriteRecordsCSV(cmd.OutOrStdout(), recs)
			}
			return encode(cmd.OutOrStdout(), format, recs)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "file path or URL (default SOURCE_LOCATION)")
	cmd.Flags().StringVar(&inputType, "type", "auto", "auto|csv|xlsx|html|pdf|eml")
	cmd.Flags().StringVar(&format, "format", "csv", "csv|json|yaml")
	return cmd
}

func summaryCmd(cfg *config.Config) *cobra.Command {
	var input, inputType, format string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print dashboard aggregates for an inspection file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := loadRecords(cmd.Context(), *cfg, input, inputType)
			if err != nil {
				return err
			}
			ov := analytics.BuildOverview(recs, true)
			if format == "text" {
				return writeSummaryText(cmd.OutOrStdout(), ov)
			}
			return encode(cmd.OutOrStdout(), format, ov)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "file path or URL (default SOURCE_LOCATION)")
	cmd.Flags().StringVar(&inputType, "type", "auto", "auto|csv|xlsx|html|pdf|eml")
	cmd.Flags().StringVar(&format, "format", "text", "text|json|yaml")
	return cmd
}

func reportCmd(cfg *config.Config) *cobra.Command {
	var input, inputType, out, buyer, contract string
	cmd := &cobra.Command{
		Use:   "report:xlsx",
		Short: "Write the shade grouping report workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(out) == "" {
				return fmt.Errorf("--out is required")
			}
			recs, err := loadRecords(cmd.Context(), *cfg, input, inputType)
			if err != nil {
				return err
			}
			meta := pipeline.ReportMeta{Title: cfg.ReportTitle, Buyer: buyer, Contract: contract, GeneratedAt: time.Now()}
			if err := pipeline.ExportRecordsToXLSX(recs, meta, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", len(recs), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "file path or URL (default SOURCE_LOCATION)")
	cmd.Flags().StringVar(&inputType, "type", "auto", "auto|csv|xlsx|html|pdf|eml")
	cmd.Flags().StringVar(&out, "out", "", "output xlsx path")
	cmd.Flags().StringVar(&buyer, "buyer", "", "buyer name for the report header")
	cmd.Flags().StringVar(&contract, "contract", "", "contract number for the report header")
	return cmd
}

type groupedSample struct {
	Roll     string            `json:"roll" yaml:"roll"`
	Group    string            `json:"group" yaml:"group"`
	DeltaE   float64           `json:"deltaE" yaml:"deltaE"`
	Decision internal.Decision `json:"decision" yaml:"decision"`
}

func groupCmd() *cobra.Command {
	var input, format string
	var tolerance float64
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Group measured rolls by shade, each group led by its first roll",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(input)
			if err != nil {
				return err
			}
			defer f.Close()
			samples, err := colour.ReadSamples(f)
			if err != nil {
				return err
			}
			labs := make([]colour.Lab, 0, len(samples))
			for _, s := range samples {
				labs = append(labs, s.Lab)
			}
			out := make([]groupedSample, 0, len(samples))
			for _, g := range colour.AssignShadeGroups(labs, tolerance) {
				out = append(out, groupedSample{
					Roll:     samples[g.Index].Roll,
					Group:    g.Group,
					DeltaE:   g.DeltaE,
					Decision: pipeline.DecisionForShade(g.Group),
				})
			}
			if format == "text" {
				w := cmd.OutOrStdout()
				for _, g := range out {
					fmt.Fprintf(w, "%-16s %-4s %6.2f %s\n", g.Roll, g.Group, g.DeltaE, g.Decision)
				}
				return nil
			}
			return encode(cmd.OutOrStdout(), format, out)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "CSV with roll, L, a, b columns")
	cmd.Flags().Float64Var(&tolerance, "tolerance", colour.DefaultGroupTolerance, "largest deltaE from a group leader")
	cmd.Flags().StringVar(&format, "format", "text", "text|json|yaml")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func mailImportCmd(cfg *config.Config) *cobra.Command {
	var provider, label, out, format string
	var max int
	cmd := &cobra.Command{
		Use:   "mail:import",
		Short: "Fetch inspection reports from a mailbox and print the imported records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if provider == "" {
				provider = cfg.MailListenerProvider
			}
			conn, err := connectors.ForProvider(*cfg, provider)
			if err != nil {
				return err
			}
			db, err := storage.Open()
			if err != nil {
				return err
			}
			defer db.Close()

			fetched, err := connectors.NewFetchService(db, conn, nil).FetchAndStore(cmd.Context(), label, max)
			if err != nil {
				return err
			}
			sink := &recordCollector{}
			emails, rows, err := pipeline.NewImportService(db, sink, pipeline.ImportOptions{}).ProcessPending(max, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "mail import provider=%s fetched=%d stored=%d processed=%d records=%d\n",
				provider, fetched.Fetched, fetched.Stored, emails, rows)

			recs := sink.all()
			if out != "" {
				meta := pipeline.ReportMeta{Title: cfg.ReportTitle, GeneratedAt: time.Now()}
				return pipeline.ExportRecordsToXLSX(recs, meta, out)
			}
			if format == "csv" {
				return pipeline.WriteRecordsCSV(cmd.OutOrStdout(), recs)
			}
			return encode(cmd.OutOrStdout(), format, recs)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "gmail|imap (default MAIL_LISTENER_PROVIDER)")
	cmd.Flags().StringVar(&label, "label", "INBOX", "mailbox or label")
	cmd.Flags().IntVar(&max, "max", 50, "max messages")
	cmd.Flags().StringVar(&out, "out", "", "write an xlsx report instead of printing")
	cmd.Flags().StringVar(&format, "format", "csv", "csv|json|yaml")
	return cmd
}

// recordCollector keeps imported batches in arrival order.
type recordCollector struct {
	keys    []string
	batches map[string][]internal.InspectionRecord
}

func (c *recordCollector) ImportRecords(batchKey string, recs []internal.InspectionRecord) error {
	if c.batches == nil {
		c.batches = map[string][]internal.InspectionRecord{}
	}
	if _, ok := c.batches[batchKey]; !ok {
		c.keys = append(c.keys, batchKey)
	}
	c.batches[batchKey] = recs
	return nil
}

func (c *recordCollector) all() []internal.InspectionRecord {
	out := []internal.InspectionRecord{}
	for _, k := range c.keys {
		out = append(out, c.batches[k]...)
	}
	return out
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeSummaryText(w io.Writer, ov analytics.Overview) error {
	s := ov.Summary
	fmt.Fprintf(w, "Rolls: %d  Accepted: %d  Hold: %d  Rejected: %d  Mean deltaE: %s\n",
		s.Total, s.Accepted, s.Hold, s.Rejected, s.AvgDeltaE)
	fmt.Fprintln(w, "\nShade distribution:")
	for _, d := range ov.Distribution {
		fmt.Fprintf(w, "  %-7s %d\n", d.Name, d.Count)
	}
	fmt.Fprintln(w, "\nSuppliers:")
	for _, sup := range ov.Suppliers {
		fmt.Fprintf(w, "  %-24s rolls=%d accept=%s avg deltaE=%s\n", sup.Name, sup.Total, sup.AcceptanceRate, sup.AvgDeltaE)
	}
	return nil
}
