package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"snaplink/internal/allocator"
	"snaplink/internal/config"
	"snaplink/internal/httpapi"
	"snaplink/internal/logging"
	"snaplink/internal/registry"
	"snaplink/internal/service"
	"snaplink/internal/storage"
)

// app carries what every subcommand needs once the root pre-run has loaded it.
type app struct {
	configDir string
	cfg       config.Config
	log       *logrus.Logger
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "snaplink",
		Short:         "Short links with expiry and click analytics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configDir)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			log, closer, err := logging.New(logging.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				File:   cfg.LogFile,
			})
			if err != nil {
				return err
			}
			a.cfg, a.log, a.logCloser = cfg, log, closer

			log.WithFields(logrus.Fields{
				"badgerdb_path": cfg.BadgerDBPath,
				"command":       cmd.Name(),
			}).Debug("Configuration loaded successfully")
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configDir, "config", "./configs", "directory containing config.yaml")

	root.AddCommand(
		newServeCmd(a),
		newCreateCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDeleteCmd(a),
		newResolveCmd(a),
	)
	return root
}

// openService opens the Badger store and builds the service over it.
// The caller must close the returned store.
func (a *app) openService() (*service.Service, *storage.BadgerStore, error) {
	store, err := storage.NewBadgerStore(a.cfg.BadgerDBPath, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	alloc := allocator.New(
		allocator.WithLength(a.cfg.CodeLength),
		allocator.WithMaxAttempts(a.cfg.CodeMaxAttempts),
	)
	reg := registry.New(store, a.log,
		registry.WithAllocator(alloc),
		registry.WithReservedCodes(httpapi.ReservedCodes...),
	)
	return service.New(reg, a.cfg.DefaultValidityMinutes, a.log), store, nil
}

func (a *app) closeStore(store *storage.BadgerStore) {
	if err := store.Close(); err != nil {
		a.log.WithError(err).Error("Error closing database")
	}
}
