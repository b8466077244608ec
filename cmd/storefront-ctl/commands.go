package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/storefront-admin/config"
	"github.com/target/storefront-admin/internal/bootstrap"
	"github.com/target/storefront-admin/internal/data/sqlite"
	"github.com/target/storefront-admin/internal/tui"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultResolveTimeout   = 10 * time.Second
)

type cli struct {
	cfg    config.AppConfig
	logger *slog.Logger
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "storefront-ctl",
		Short:         "Operate the storefront admin session from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		newMigrateCmd(c),
		newBootstrapAdminCmd(c),
		newLoginCmd(c),
		newStatusCmd(c),
		newLogoutCmd(c),
	)
	return root
}

// withRuntime builds the session runtime, follows the change feed while fn runs, then releases it.
func (c *cli) withRuntime(ctx context.Context, fn func(ctx context.Context, rt *bootstrap.SessionRuntime) error) error {
	if err := bootstrap.ValidateConfig(&c.cfg); err != nil {
		return err
	}
	rt, err := bootstrap.BuildSessionRuntime(ctx, &c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			c.logger.Warn("release session runtime failed", "error", closeErr)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if runErr := rt.Provider.Run(runCtx); runErr != nil {
			c.logger.Warn("identity provider stopped", "error", runErr)
		}
	}()

	return fn(ctx, rt)
}

func newMigrateCmd(c *cli) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the account schema for the configured directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return c.migrate(ctx, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "migration timeout")
	return cmd
}

func (c *cli) migrate(ctx context.Context, out io.Writer) error {
	switch c.cfg.Auth.Directory {
	case config.DirectoryPostgres:
		db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: c.cfg.Postgres, Logger: c.logger})
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				c.logger.Warn("db close failed", "error", closeErr)
			}
		}()
		applied, err := bootstrap.RunMigrations(ctx, db, c.logger)
		if err != nil {
			return err
		}
		for _, version := range applied {
			if _, err := fmt.Fprintf(out, "Applied %s\n", version); err != nil {
				return err
			}
		}
	case config.DirectorySQLite:
		store, err := sqlite.Open(ctx, c.cfg.SQLite.DSN)
		if err != nil {
			return err
		}
		if err := store.Close(); err != nil {
			return fmt.Errorf("close sqlite: %w", err)
		}
	default:
		_, err := fmt.Fprintf(out, "Directory %q keeps no schema; nothing to migrate.\n", c.cfg.Auth.Directory)
		return err
	}
	_, err := fmt.Fprintf(out, "Migrations for the %s directory completed.\n", c.cfg.Auth.Directory)
	return err
}

func newBootstrapAdminCmd(c *cli) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create an administrator account, reading the password from stdin",
		Long: `Create an administrator account without signing in.

The password is read from the first line of stdin so it never appears in shell history.

Examples:
  echo "$ADMIN_PASSWORD" | storefront-ctl bootstrap-admin --email owner@example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.SessionRuntime) error {
				if err := rt.Provider.CreatePrivilegedAccount(ctx, email, secret); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Created administrator %s\n", strings.ToLower(strings.TrimSpace(email)))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readSecret returns the first line of r without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("password is required on stdin")
	}
	return secret, nil
}

func newLoginCmd(c *cli) *cobra.Command {
	var (
		bootstrapMode bool
		showSecret    bool
		email         string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in, or create the first administrator with --bootstrap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := tui.ModeSignIn
			if bootstrapMode {
				mode = tui.ModeBootstrap
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.SessionRuntime) error {
				return c.login(ctx, rt, cmd.OutOrStdout(), tui.LoginOptions{
					Mode:       mode,
					Identifier: email,
					ShowSecret: showSecret,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&bootstrapMode, "bootstrap", false, "create the first administrator instead of signing in")
	cmd.Flags().BoolVar(&showSecret, "show-secret", false, "echo the password while typing")
	cmd.Flags().StringVar(&email, "email", "", "prefill the email field")
	return cmd
}

func (c *cli) login(ctx context.Context, rt *bootstrap.SessionRuntime, out io.Writer, opts tui.LoginOptions) error {
	waitCtx, cancel := context.WithTimeout(ctx, defaultResolveTimeout)
	snap, _ := rt.Store.WaitResolved(waitCtx)
	cancel()
	if snap.Authenticated() {
		fmt.Fprintln(out, tui.RenderHint("Already signed in as "+snap.CurrentUser.Email+"; submitting replaces the session."))
	}

	if opts.Mode == tui.ModeSignIn {
		if exists, err := rt.Provider.AdminExists(ctx); err == nil && !exists {
			fmt.Fprintln(out, tui.RenderHint("No administrator exists yet. Re-run with --bootstrap to create one."))
		}
	}
	if c.cfg.Session.CredentialStore == config.CredentialStoreMemory {
		fmt.Fprintln(out, tui.RenderHint("The credential store is in memory; this session ends with the command."))
	}

	creds, err := tui.PromptCredentials(opts)
	if err != nil {
		return err
	}

	submitErr := tui.RunWithSpinner(ctx, tui.SubmitTitle(creds.Mode), func(ctx context.Context) error {
		if creds.Mode == tui.ModeBootstrap {
			_, err := rt.Store.CreatePrivilegedAccount(ctx, creds.Identifier, creds.Secret)
			return err
		}
		_, err := rt.Store.SignIn(ctx, creds.Identifier, creds.Secret)
		return err
	})

	fmt.Fprintln(out, tui.RenderSession(rt.Store.Snapshot()))
	return submitErr
}

func newStatusCmd(c *cli) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current session once it resolves",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.SessionRuntime) error {
				waitCtx, cancel := context.WithTimeout(ctx, wait)
				defer cancel()
				snap, err := rt.Store.WaitResolved(waitCtx)
				if err != nil && !errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSession(snap))
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", defaultResolveTimeout, "how long to wait for the session to resolve")
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the persisted credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.SessionRuntime) error {
				rt.Store.SignOut(ctx)
				_, err := fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSession(rt.Store.Snapshot()))
				return err
			})
		},
	}
}
