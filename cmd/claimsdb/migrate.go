package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ehr/claimsdb/internal/platform/db"
	"github.com/ehr/claimsdb/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := selectedSchemas(cmd)
			if err != nil {
				return err
			}
			app, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			for _, schema := range schemas {
				m, err := db.NewMigrator(app.pool, migrations.FS, schema, schema, app.log)
				if err != nil {
					return err
				}
				count, err := m.Up(cmd.Context())
				if err != nil {
					return fmt.Errorf("migrate %s: %w", schema, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: applied %d migration(s)\n", schema, count)
			}
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Only migrate this schema (billing or clinical)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := selectedSchemas(cmd)
			if err != nil {
				return err
			}
			app, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			for _, schema := range schemas {
				m, err := db.NewMigrator(app.pool, migrations.FS, schema, schema, app.log)
				if err != nil {
					return err
				}
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("migration status for %s: %w", schema, err)
				}
				printMigrationStatus(cmd.OutOrStdout(), schema, statuses)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Only report this schema (billing or clinical)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func selectedSchemas(cmd *cobra.Command) ([]string, error) {
	schema, _ := cmd.Flags().GetString("schema")
	if schema == "" {
		return migrations.Schemas, nil
	}
	for _, s := range migrations.Schemas {
		if s == schema {
			return []string{s}, nil
		}
	}
	return nil, fmt.Errorf("unknown schema %q (want one of %v)", schema, migrations.Schemas)
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
