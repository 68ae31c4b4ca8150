// Package main is the entrypoint for the Backhaul admin CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/config"
	"github.com/MacJediWizard/backhaul/internal/crypto"
	"github.com/MacJediWizard/backhaul/internal/db"
	"github.com/MacJediWizard/backhaul/internal/models"
	"github.com/MacJediWizard/backhaul/internal/provision"
	"github.com/MacJediWizard/backhaul/internal/reconcile"
	"github.com/MacJediWizard/backhaul/internal/schedule"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "backhaul-admin",
		Short:        "Backhaul operator CLI",
		Long:         "Operator tooling for a Backhaul control plane: key generation,\ntenant management, and one-shot maintenance passes.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newTenantCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newProvisionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("backhaul-admin %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new encryption key",
		Long:  "Generates a 32-byte AES key and prints it hex-encoded for use\nas BACKHAUL_ENCRYPTION_KEY.",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			fmt.Println(crypto.KeyToHex(key))
			return nil
		},
	}
}

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}
	cmd.AddCommand(newTenantCreateCmd())
	cmd.AddCommand(newTenantListCmd())
	return cmd
}

func newTenantCreateCmd() *cobra.Command {
	var name, slug string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := newAdminEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			tenant := models.NewTenant(name, slug)
			if err := env.database.CreateTenant(ctx, tenant); err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}
			fmt.Printf("created tenant %s (%s)\n", tenant.Slug, tenant.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&slug, "slug", "", "URL-safe identifier")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("slug")

	return cmd
}

func newTenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := newAdminEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			tenants, err := env.database.ListTenants(ctx)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}
			for _, t := range tenants {
				fmt.Printf("%s\t%s\t%s\n", t.ID, t.Slug, t.Name)
			}
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	var withLogs bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and exit",
		Long:  "Polls every reachable agent, reconciles the operation ledger, and\nprojects upcoming schedule slots. With --logs it also ingests tasklog\nand process log evidence per tenant.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := newAdminEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			fetcher := reconcile.NewSSHLogFetcher(env.database, env.cipher, env.logger)
			engine := reconcile.New(
				env.database,
				func(s *models.Server) reconcile.AgentClient { return env.agentClient(s) },
				fetcher,
				reconcile.DefaultConfig(),
				env.logger,
			)

			engine.Run(ctx)
			schedule.New(env.database, env.logger).Run(ctx)

			if withLogs {
				tenants, err := env.database.ListTenants(ctx)
				if err != nil {
					return fmt.Errorf("list tenants: %w", err)
				}
				for _, tenant := range tenants {
					if err := engine.IngestTenantTaskLogs(ctx, models.Scope(tenant.ID)); err != nil {
						env.logger.Error().Err(err).Str("tenant", tenant.Slug).Msg("tasklog ingest failed")
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withLogs, "logs", false, "also ingest tasklog and process log evidence")

	return cmd
}

func newProvisionCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "provision <server-id>",
		Short: "Test, install, and verify an agent on a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			serverID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid server id: %w", err)
			}
			tid, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			scope := models.Scope(tid)

			env, err := newAdminEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			server, err := env.database.GetServerByID(ctx, scope, serverID)
			if err != nil {
				return fmt.Errorf("load server: %w", err)
			}

			provCfg := provision.DefaultConfig()
			if playbook := os.Getenv("BACKHAUL_ANSIBLE_PLAYBOOK"); playbook != "" {
				provCfg.UseAnsible = true
				provCfg.PlaybookPath = playbook
			}
			driver := provision.New(
				env.database,
				env.cipher,
				provision.DefaultDialer,
				func(s *models.Server) provision.ConfigClient { return env.agentClient(s) },
				provCfg,
				env.logger,
			)

			if err := driver.TestConnection(ctx, scope, server); err != nil {
				return fmt.Errorf("test connection: %w", err)
			}
			fmt.Printf("%s: connected\n", server.Hostname)

			if err := driver.InstallAgent(ctx, scope, server); err != nil {
				return fmt.Errorf("install agent: %w", err)
			}
			fmt.Printf("%s: agent %s installed\n", server.Hostname, server.AgentVersion)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant ID owning the server")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

// adminEnv bundles the shared dependencies of database-backed commands.
type adminEnv struct {
	cfg      config.ServerConfig
	database *db.DB
	cipher   *crypto.AESCipher
	logger   zerolog.Logger
}

func newAdminEnv(ctx context.Context) (*adminEnv, error) {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		return nil, err
	}

	dbCfg := db.DefaultConfig(cfg.DatabaseURL)
	dbCfg.MaxConns = 5
	database, err := db.New(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	var key []byte
	if cfg.EncryptionKey != "" {
		key, err = crypto.KeyFromHex(cfg.EncryptionKey)
	} else {
		key, err = crypto.LoadOrCreateKeyFile(cfg.EncryptionKeyFile)
	}
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("load encryption key: %w", err)
	}

	cipher, err := crypto.NewAESCipher(key)
	if err != nil {
		database.Close()
		return nil, err
	}

	return &adminEnv{cfg: cfg, database: database, cipher: cipher, logger: logger}, nil
}

func (e *adminEnv) agentClient(server *models.Server) *agentapi.Client {
	return agentapi.NewClient(server.AgentURL(), e.cfg.AgentTimeout, e.logger)
}

func (e *adminEnv) close() {
	e.database.Close()
}
