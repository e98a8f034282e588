package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-catalog/internal/logger"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/config"
)

// cli holds the state shared by every subcommand
type cli struct {
	configFile  string
	databaseURL string
	storageURL  string
	logLevel    string
	jsonOutput  bool

	service   simplecatalog.Service
	resources *config.Resources
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Manage catalog items and their images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Path to a yaml, json or toml config file")
	flags.StringVar(&c.databaseURL, "database-url", "", "Record store URL (overrides DATABASE_URL)")
	flags.StringVar(&c.storageURL, "storage-url", "", "Blob store URL (overrides STORAGE_URL)")
	flags.StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.BoolVar(&c.jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(
		newListCmd(c),
		newShowCmd(c),
		newAddCmd(c),
		newRemoveCmd(c),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) error {
	opts := []config.Option{}
	if c.configFile != "" {
		opts = append(opts, config.WithConfigFile(c.configFile))
	} else {
		opts = append(opts, config.WithEnv())
	}
	if c.databaseURL != "" {
		opts = append(opts, config.WithDatabaseURL(c.databaseURL))
	}
	if c.storageURL != "" {
		opts = append(opts, config.WithStorageURL(c.storageURL))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), c.logLevel, "text")
	slog.SetDefault(log)

	svc, res, err := cfg.BuildService(cmd.Context(), log)
	if err != nil {
		return err
	}
	c.service = svc
	c.resources = res
	return nil
}

// close releases the connections opened by open. It runs after every
// command, including failed ones.
func (c *cli) close() error {
	if c.resources == nil {
		return nil
	}
	err := c.resources.Close()
	c.resources = nil
	return err
}
