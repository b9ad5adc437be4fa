package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/matheus3301/fieldsync/internal/config"
	"github.com/matheus3301/fieldsync/internal/profile"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage config.toml",
}

var (
	initBaseURLFlag   string
	initCollectorFlag string
	initForceFlag     bool
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config with a fresh device id",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := profile.ConfigPath()
		if _, err := os.Stat(path); err == nil && !initForceFlag {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		cfg := config.Default()
		cfg.DeviceID = uuid.NewString()
		cfg.CollectorID = initCollectorFlag
		cfg.Remote.BaseURL = initBaseURLFlag
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (device %s)\n", path, cfg.DeviceID)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOrDefault(profile.ConfigPath())
		if err != nil {
			return err
		}
		if cfg.Remote.S3.SecretAccessKey != "" {
			cfg.Remote.S3.SecretAccessKey = "********"
		}
		if jsonFlag {
			return outputJSON(cfg)
		}
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	},
}

func init() {
	configInitCmd.Flags().StringVar(&initBaseURLFlag, "base-url", "", "remote sync endpoint")
	configInitCmd.Flags().StringVar(&initCollectorFlag, "collector", "", "collector id stamped on records")
	configInitCmd.Flags().BoolVar(&initForceFlag, "force", false, "overwrite an existing config")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
