// Command shuttletrack is the terminal client for the school shuttle
// backend: sign in, see who you are, find your shuttle, follow it live.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"shuttletrack/internal/api"
	"shuttletrack/internal/assignment"
	"shuttletrack/internal/config"
	"shuttletrack/internal/credstore"
	"shuttletrack/internal/identity"
	"shuttletrack/internal/messaging"
	"shuttletrack/internal/roster"
	"shuttletrack/internal/session"
)

var (
	verbose    bool
	apiURL     string
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shuttletrack",
	Short: "School shuttle client",
	Long: `shuttletrack talks to the school shuttle backend.

It signs in, works out what role the account actually has (the backend is
not always sure), discovers the shuttle assigned to the account, and can
follow that shuttle's live position.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// app bundles the wired-up client stack for command handlers.
type app struct {
	cfg         config.Config
	session     *session.Session
	assignments *assignment.Resolver
	tracker     *assignment.Tracker
	messages    *messaging.Client
	roster      *roster.Service
}

func buildApp() (*app, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}

	credPath, err := credstore.DefaultPath()
	if err != nil {
		return nil, err
	}
	store := credstore.NewStore(credPath)

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, nil, logger)
	roles := identity.NewResolver(client, cfg.Discovery, logger)
	assignments := assignment.NewResolver(client, cfg.Discovery, logger)
	sess := session.New(store, client, roles, assignments, logger)

	return &app{
		cfg:         cfg,
		session:     sess,
		assignments: assignments,
		tracker:     assignment.NewTracker(client, cfg.Tracking.Interval, logger),
		messages:    messaging.NewClient(client, logger),
		roster:      roster.NewService(client, assignments, logger),
	}, nil
}

// restore bootstraps the session and fails the command when nobody is
// signed in.
func (a *app) restore(cmd *cobra.Command) error {
	if a.session.Bootstrap(cmd.Context()) != session.StateAuthenticated {
		return fmt.Errorf("not signed in; run `shuttletrack login` first")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "override the backend base URL")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(shuttleCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(passengersCmd)
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
