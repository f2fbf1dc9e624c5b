package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/claimsdb/internal/catalog"
	"github.com/ehr/claimsdb/internal/platform/cache"
)

func vocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Manage lookup vocabularies",
	}

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Upsert status, diagnosis and procedure codes from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			app, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			// Loading drops the shared sets so running servers reload them.
			vocabCache, err := cache.New(cmd.Context(), app.cfg.RedisURL, "claimsdb")
			if err != nil {
				return err
			}
			defer vocabCache.Close()

			svcs := newServices(app.cfg, app.pool, vocabCache, app.log)
			n, err := svcs.billing.LoadVocabulary(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d code(s) from %s\n", n, path)
			return nil
		},
	}
	loadCmd.Flags().String("file", "", "YAML vocabulary file")
	cmd.AddCommand(loadCmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export data to files",
	}

	linesCmd := &cobra.Command{
		Use:   "claim-lines",
		Short: "Write claim lines serviced in a date range to a Parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromStr, _ := cmd.Flags().GetString("from")
			toStr, _ := cmd.Flags().GetString("to")
			out, _ := cmd.Flags().GetString("out")
			from, err := parseDay("from", fromStr)
			if err != nil {
				return err
			}
			to, err := parseDay("to", toStr)
			if err != nil {
				return err
			}
			if out == "" {
				return fmt.Errorf("--out is required")
			}

			app, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			svcs := newServices(app.cfg, app.pool, cache.Disabled(), app.log)
			n, err := svcs.billing.ExportClaimLines(cmd.Context(), from, to, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(out)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d claim line(s) to %s\n", n, out)
			return nil
		},
	}
	linesCmd.Flags().String("from", "", "First service date (YYYY-MM-DD)")
	linesCmd.Flags().String("to", "", "Last service date (YYYY-MM-DD)")
	linesCmd.Flags().String("out", "claim_lines.parquet", "Output file")
	cmd.AddCommand(linesCmd)
	return cmd
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Describe the persisted tables and relationships",
	}

	describeCmd := &cobra.Command{
		Use:   "describe [table]",
		Short: "Print every table, or one table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := catalog.Result{Tables: catalog.Tables(), Relationships: catalog.Relationships()}
			if len(args) == 1 {
				var err error
				if res, err = catalog.Describe(args[0]); err != nil {
					return err
				}
			}
			output, _ := cmd.Flags().GetString("output")
			return writeSchema(cmd.OutOrStdout(), res, output)
		},
	}
	describeCmd.Flags().StringP("output", "o", "text", "Output format: text, json or yaml")
	cmd.AddCommand(describeCmd)

	searchCmd := &cobra.Command{
		Use:   "search <words...>",
		Short: "Find tables and columns by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := catalog.Search(strings.Join(args, " "))
			if len(res.Tables) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matching tables")
				return nil
			}
			output, _ := cmd.Flags().GetString("output")
			return writeSchema(cmd.OutOrStdout(), res, output)
		},
	}
	searchCmd.Flags().StringP("output", "o", "text", "Output format: text, json or yaml")
	cmd.AddCommand(searchCmd)

	return cmd
}

func writeSchema(w io.Writer, res catalog.Result, output string) error {
	switch output {
	case "text", "":
		return catalog.FormatResult(w, res)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}
