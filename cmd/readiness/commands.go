package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/facturaIA/einvoice-readiness-service/internal/ingest"
	"github.com/facturaIA/einvoice-readiness-service/internal/models"
	"github.com/facturaIA/einvoice-readiness-service/internal/schema"
	"github.com/facturaIA/einvoice-readiness-service/internal/services"
)

type analyzeOptions struct {
	format     string
	schemaPath string
	country    string
	erp        string
	posture    models.Questionnaire
	compact    bool
}

func newRootCmd() *cobra.Command {
	var schemaPath string

	root := &cobra.Command{
		Use:           "readiness",
		Short:         "Score an invoice export for e-invoicing readiness",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&schemaPath, "schema", "", "canonical schema YAML (default: built-in GETS v0.1)")

	root.AddCommand(newAnalyzeCmd(&schemaPath), newSchemaCmd(&schemaPath))
	return root
}

func newAnalyzeCmd(schemaPath *string) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a CSV or JSON invoice export and print the report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.schemaPath = *schemaPath
			return runAnalyze(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "", "payload format: csv or json (default: detect)")
	cmd.Flags().StringVar(&opts.country, "country", "", "country of the uploader")
	cmd.Flags().StringVar(&opts.erp, "erp", "", "source ERP")
	cmd.Flags().BoolVar(&opts.posture.Webhooks, "webhooks", false, "integration supports webhooks")
	cmd.Flags().BoolVar(&opts.posture.SandboxEnv, "sandbox-env", false, "integration has a sandbox environment")
	cmd.Flags().BoolVar(&opts.posture.Retries, "retries", false, "integration retries failed submissions")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "print the report on a single line")
	return cmd
}

func runAnalyze(cmd *cobra.Command, path string, opts *analyzeOptions) error {
	registry, err := loadRegistry(opts.schemaPath)
	if err != nil {
		return err
	}

	format, err := ingest.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	service := services.NewReadinessService(services.NewAnalyzer(registry), nil, nil, 0)
	report, err := service.AnalyzeInline(data, format, models.UploadContext{Country: opts.country, ERP: opts.erp}, opts.posture)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !opts.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(report)
}

func newSchemaCmd(schemaPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "List the canonical fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(*schemaPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Schema %s (%d fields)\n", registry.Version(), registry.Len())
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tTYPE\tREQUIRED\tCATEGORY")
			for _, f := range registry.Fields() {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", f.Path, f.Type, f.Required, f.Category)
			}
			return tw.Flush()
		},
	}
}

func loadRegistry(path string) (*schema.Registry, error) {
	if path == "" {
		return schema.Default()
	}
	return schema.Load(path)
}
