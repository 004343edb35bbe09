// Package app provides the entry point for the mcpmux command-line
// application: serve, version, and validate subcommands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcpmux/internal/clientconfig"
	"github.com/stacklok/mcpmux/pkg/admin"
	"github.com/stacklok/mcpmux/pkg/backend/embedded"
	"github.com/stacklok/mcpmux/pkg/config"
	"github.com/stacklok/mcpmux/pkg/controller"
	"github.com/stacklok/mcpmux/pkg/logger"
	"github.com/stacklok/mcpmux/pkg/process"
	"github.com/stacklok/mcpmux/pkg/secrets"
)

// processName identifies this instance's PID file; mcpmux runs a single
// proxy per invocation, so one fixed name suffices.
const processName = "proxy"

var rootCmd = &cobra.Command{
	Use:               "mcpmux",
	DisableAutoGenTag: true,
	Short:             "mcpmux - multiplex MCP clients across multiple backend servers",
	Long: `mcpmux is a multiplexing proxy that exposes one Unix-domain socket per
backend MCP server (external subprocess or in-process handler), applying a
shared access filter and interceptor pipeline to every request.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd builds the mcpmux root command.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the mcpmux registration document")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy",
		Long: `Load the registration document, register every backend, bind its endpoint
socket, start every auto_start backend, and serve until a signal arrives.`,
		RunE: runServe,
	}
	cmd.Flags().String("admin-addr", "127.0.0.1:8282", "Address the admin HTTP surface binds to")
	cmd.Flags().String("secrets", string(secrets.NoneType), "Secret provider: none, environment, encrypted, keyring")
	cmd.Flags().String("client-config", "", "If set, write a client-config file to this path once startup completes")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("mcpmux version: %s", getVersion())
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a registration document",
		RunE: func(_ *cobra.Command, _ []string) error {
			configPath := viper.GetString("config")
			if configPath == "" {
				return fmt.Errorf("no configuration file specified, use --config")
			}
			parsed, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			logger.Infof("configuration is valid: %d backend(s) registered", len(parsed.Backends))
			for _, b := range parsed.Backends {
				logger.Infof("  %s (%s), auto_start=%v", b.Name, b.Kind, b.AutoStart)
			}
			return nil
		},
	}
}

func getVersion() string {
	return "dev"
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	configPath := viper.GetString("config")
	if configPath == "" {
		return fmt.Errorf("no configuration file specified, use --config")
	}

	parsed, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	secretsType, _ := cmd.Flags().GetString("secrets")
	provider, err := secrets.CreateSecretProvider(secrets.ProviderType(secretsType))
	if err != nil {
		return fmt.Errorf("failed to create secret provider: %w", err)
	}

	ctrl := controller.New(provider, embedded.NewRegistry(), parsed.MaxConnections)
	for _, be := range parsed.Backends {
		if err := ctrl.Register(be); err != nil {
			return fmt.Errorf("failed to register backend %s: %w", be.Name, err)
		}
	}

	if err := ctrl.Startup(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	if err := process.WriteCurrentPIDFile(processName); err != nil {
		logger.Warnf("failed to write PID file: %v", err)
	}
	defer func() {
		if err := process.RemovePIDFile(processName); err != nil {
			logger.Warnf("failed to remove PID file: %v", err)
		}
		if err := ctrl.Shutdown(); err != nil {
			logger.Errorf("shutdown error: %v", err)
		}
	}()

	adminSrv := admin.New(ctrl)
	adminSrv.MarkReady()

	adminAddr, _ := cmd.Flags().GetString("admin-addr")
	httpSrv := &http.Server{Addr: adminAddr, Handler: adminSrv.Handler()}
	go func() {
		logger.Infof("admin surface listening on %s", adminAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("admin surface error: %v", err)
		}
	}()
	defer httpSrv.Close()

	if clientConfigPath, _ := cmd.Flags().GetString("client-config"); clientConfigPath != "" {
		if err := writeClientConfig(ctrl, clientConfigPath); err != nil {
			logger.Errorf("failed to write client config: %v", err)
		}
	}

	logger.Infof("mcpmux started with %d backend(s)", len(parsed.Backends))
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func writeClientConfig(ctrl *controller.Controller, path string) error {
	snap := ctrl.StatusSnapshot()
	entries := make([]clientconfig.Entry, 0, len(snap.Backends))
	for _, b := range snap.Backends {
		entries = append(entries, clientconfig.Entry{Name: b.Name, EndpointPath: b.EndpointPath})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return clientconfig.Write(path, entries, false)
}
