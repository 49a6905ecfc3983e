package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/cdastats/internal/platform/auth"
	"github.com/ehr/cdastats/internal/platform/ccda"
	"github.com/ehr/cdastats/internal/platform/db"
	"github.com/ehr/cdastats/internal/report"
	"github.com/ehr/cdastats/migrations"
)

func generateCmd() *cobra.Command {
	var (
		count int
		out   string
		seed  int64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic CDA corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := generateCorpus(out, count, seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d document(s) to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 100, "Number of documents")
	cmd.Flags().StringVarP(&out, "out", "o", "corpus", "Output directory")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed; the same seed writes the same corpus")
	return cmd
}

// generateCorpus writes count documents into dir. Records that share a
// patient id share a file name, so the number written can be lower than
// count.
func generateCorpus(dir string, count int, seed int64) (int, error) {
	if count <= 0 {
		return 0, fmt.Errorf("count must be positive, got %d", count)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}

	gen := ccda.NewGenerator(custodianName, custodianOID)
	rng := rand.New(rand.NewSource(seed))
	written := map[string]bool{}
	for i := 0; i < count; i++ {
		rec := gen.RandomRecord(rng)
		data, err := gen.Generate(rec)
		if err != nil {
			return len(written), err
		}
		name := rec.FileName()
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return len(written), fmt.Errorf("write %s: %w", name, err)
		}
		written[name] = true
	}
	return len(written), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run run-history migrations against DATABASE_URL",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := connectPostgres(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.Postgres()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := connectPostgres(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.Postgres()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				applied := "pending"
				appliedAt := ""
				if s.Applied {
					applied = "applied"
				}
				if s.AppliedAt != nil {
					appliedAt = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, applied, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func historyCmd() *cobra.Command {
	var (
		limit  int
		offset int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded analysis runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			renderer, err := report.New(cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			hist, err := openHistory(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer hist.close()

			runs, total, err := hist.repo.List(ctx, limit, offset)
			if err != nil {
				return err
			}
			return renderer.Runs(runs, total)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "Runs to skip")
	cmd.Flags().StringVarP(&format, "format", "f", report.FormatTable, "Output format: table, json or yaml")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		roles   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token with AUTH_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			tok, err := auth.IssueToken([]byte(cfg.AuthSigningKey), cfg.AuthIssuer, subject, splitRoles(roles), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "cli", "Token subject")
	cmd.Flags().StringVar(&roles, "role", auth.RoleAnalyst, "Comma-separated roles")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
