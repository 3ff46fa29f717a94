// Package main provides tasklinectl, the operations CLI for a Taskline
// deployment. It talks straight to the database, so it works even when the
// API server is down.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/taskline/taskline/internal/auth"
	"github.com/taskline/taskline/internal/config"
	"github.com/taskline/taskline/internal/db"
	"github.com/taskline/taskline/internal/maintenance"
	"github.com/taskline/taskline/internal/models"
	"github.com/taskline/taskline/pkg/slug"
)

var (
	Version = "dev"

	flagDBURL   string
	flagVerbose bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tasklinectl",
		Short:         "Operations CLI for Taskline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagDBURL, "db", "", "database URL (defaults to DATABASE_URL or ~/.taskline/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newOrgCmd(),
		newUserCmd(),
		newReconcileCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// openDB resolves the database URL from the flag, the environment, or the
// config file, in that order, and connects.
func openDB(ctx context.Context, logger zerolog.Logger) (*db.DB, error) {
	url := flagDBURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		cfg, err := config.LoadClientDefault()
		if err != nil {
			return nil, err
		}
		url = cfg.DatabaseURL
	}
	if url == "" {
		return nil, fmt.Errorf("database URL required: use --db, DATABASE_URL, or tasklinectl config set-db")
	}

	cfg := db.DefaultConfig(url)
	cfg.MaxConns = 5
	cfg.MinConns = 1
	return db.New(ctx, cfg, logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tasklinectl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tasklinectl %s\n", Version)
		},
	}
}

func newOrgCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
	}

	var orgSlug string
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			database, err := openDB(ctx, newLogger())
			if err != nil {
				return err
			}
			defer database.Close()

			name := args[0]
			s := orgSlug
			if s == "" {
				s = slug.Make(name)
			}
			org := models.NewOrganization(name, s)
			if err := database.CreateOrganization(ctx, org); err != nil {
				return err
			}
			fmt.Printf("Created organization %s (%s)\n", org.ID, org.Slug)
			return nil
		},
	}
	createCmd.Flags().StringVar(&orgSlug, "slug", "", "URL slug (derived from name when omitted)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			database, err := openDB(ctx, newLogger())
			if err != nil {
				return err
			}
			defer database.Close()

			orgs, err := database.GetAllOrganizations(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSLUG\tCREATED")
			for _, org := range orgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", org.ID, org.Name, org.Slug, org.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var (
		email   string
		orgID   string
		isAdmin bool
	)
	createCmd := &cobra.Command{
		Use:   "create <username> <password>",
		Short: "Create a user",
		Long: "Create a user. The first user ever created becomes the system owner. " +
			"Without --org the user joins the default organization.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			database, err := openDB(ctx, newLogger())
			if err != nil {
				return err
			}
			defer database.Close()

			hash, err := auth.HashPassword(args[1])
			if err != nil {
				return err
			}

			var org *uuid.UUID
			if orgID != "" {
				id, err := uuid.Parse(orgID)
				if err != nil {
					return fmt.Errorf("invalid --org: %w", err)
				}
				org = &id
			}

			user := models.NewUser(args[0], email, hash, org)
			user.IsAdmin = isAdmin
			if err := database.CreateUser(ctx, user); err != nil {
				return err
			}

			if user.IsSystemOwner {
				fmt.Printf("Created user %s (%s) as system owner\n", user.Username, user.ID)
			} else {
				fmt.Printf("Created user %s (%s) in organization %s\n", user.Username, user.ID, user.OrgID)
			}
			return nil
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "email address")
	createCmd.Flags().StringVar(&orgID, "org", "", "organization ID (defaults to the default organization)")
	createCmd.Flags().BoolVar(&isAdmin, "admin", false, "grant organization admin")

	cmd.AddCommand(createCmd)
	return cmd
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one default-organization reconciliation sweep",
		Long: "Resolves the default organization (creating it if missing, merging " +
			"duplicates if present) and assigns orphaned users to it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			logger := newLogger()
			database, err := openDB(ctx, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			reconciler := maintenance.NewReconciler(database, logger)
			if err := reconciler.RunOnce(ctx); err != nil {
				return err
			}
			fmt.Println("Reconciliation complete")
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tasklinectl configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set-db <url>",
			Short: "Store the database URL in ~/.taskline/config.yml",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.LoadClientDefault()
				if err != nil {
					return err
				}
				cfg.DatabaseURL = args[0]

				path, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				if err := cfg.Save(path); err != nil {
					return err
				}
				fmt.Printf("Saved %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the stored configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.LoadClientDefault()
				if err != nil {
					return err
				}
				if cfg.DatabaseURL == "" {
					fmt.Println("No configuration stored")
					return nil
				}
				fmt.Printf("database_url: %s\n", cfg.DatabaseURL)
				return nil
			},
		},
	)
	return cmd
}
