package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/labtrend/labtrend/internal/domain/records"
	"github.com/labtrend/labtrend/internal/platform/auth"
	"github.com/labtrend/labtrend/internal/platform/convert"
	"github.com/labtrend/labtrend/internal/platform/db"
	"github.com/labtrend/labtrend/migrations"
)

func migrateCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrations(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func printMigrations(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
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

func snapshotCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Store and list corpus snapshots",
	}

	// snapshot save
	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Load the data folder and store the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			label, _ := cmd.Flags().GetString("label")
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := loadService(ctx, cfg, newLogger(cfg, cmd.ErrOrStderr()), pool)
			if err != nil {
				return err
			}
			snap, err := svc.SaveSnapshot(ctx, label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved snapshot %s (%d names, %d entries)\n", snap.ID, snap.Names, snap.Entries)
			return nil
		},
	}
	saveCmd.Flags().String("label", "", "Free-text label stored with the snapshot")
	cmd.AddCommand(saveCmd)

	// snapshot list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			snaps, total, err := records.NewSnapshotRepoPG(pool).List(ctx, limit, 0)
			if err != nil {
				return err
			}
			printSnapshots(cmd.OutOrStdout(), snaps, total)
			return nil
		},
	}
	listCmd.Flags().Int("limit", 20, "Maximum snapshots to show")
	cmd.AddCommand(listCmd)

	// snapshot delete
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid snapshot id: %w", err)
			}
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := records.NewSnapshotRepoPG(pool).Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted snapshot %s\n", id)
			return nil
		},
	})

	return cmd
}

func printSnapshots(w io.Writer, snaps []*records.Snapshot, total int) {
	fmt.Fprintf(w, "%-36s %-24s %-8s %-8s %s\n", "ID", "LABEL", "NAMES", "ENTRIES", "CREATED AT")
	for _, s := range snaps {
		fmt.Fprintf(w, "%-36s %-24s %-8d %-8d %s\n",
			s.ID, s.Label, s.Names, s.Entries, s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "%d of %d snapshot(s)\n", len(snaps), total)
}

func tokenCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with AUTH_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(auth.JWTConfig{
				Issuer:     cfg.AuthIssuer,
				Audience:   cfg.AuthAudience,
				SigningKey: []byte(cfg.AuthSigningKey),
			}, auth.TokenRequest{Subject: subject, Roles: roles, TTL: ttl}, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "labtrend-cli", "Token subject")
	cmd.Flags().StringSlice("role", []string{auth.RoleReader}, "Granted roles (reader, admin)")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

func convertCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <input-dir>",
		Short: "Convert extracted .txt and saved .html reports into input documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			res, err := convert.NewConverter(logger).ConvertDir(cmd.Context(), args[0], out)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Converted %d file(s) to %s\n", res.Converted, res.OutputDir)
			for _, msg := range res.Errors {
				fmt.Fprintf(w, "  %s\n", msg)
			}
			return nil
		},
	}
	cmd.Flags().String("out", "", "Output folder (default <input-dir>/txt_json)")
	return cmd
}
