package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fileshare/internal/config"
)

func newConfigCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change configuration",
	}
	cmd.AddCommand(
		newConfigGetCmd(cfg, jsonOutput),
		newConfigListCmd(cfg, jsonOutput),
		newConfigSetCmd(jsonOutput),
	)
	return cmd
}

func newConfigGetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of one key",
		Args:  requireExactlyArgs(1, "key is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := lookupConfigKey(cfg, args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeStructured(map[string]string{"key": args[0], "value": value})
			}
			return writePlain("%s\n", value)
		},
	}
}

func newConfigListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every supported key with its effective value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[string]string, len(config.AllowedKeys()))
			for _, key := range config.AllowedKeys() {
				value, err := cfg.Get(key)
				if err != nil {
					return err
				}
				values[key] = value
			}
			if *jsonOutput {
				return writeStructured(values)
			}
			for _, key := range config.AllowedKeys() {
				if err := writePlain("%s = %s\n", key, values[key]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newConfigSetCmd(jsonOutput *bool) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one key to the project or global config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkConfigKey(args[0]); err != nil {
				return err
			}
			path, err := configTargetPath(global)
			if err != nil {
				return err
			}
			if err := config.SetKey(path, args[0], args[1]); err != nil {
				return err
			}
			if *jsonOutput {
				return writeStructured(map[string]string{"key": args[0], "path": path})
			}
			return writePlain("%s\n", path)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to the global config (~/.fileshare.toml)")
	return cmd
}

func checkConfigKey(key string) error {
	if config.IsAllowedKey(key) {
		return nil
	}
	return fmt.Errorf("unknown key %q (allowed: %s)", key, strings.Join(config.AllowedKeys(), ", "))
}

func lookupConfigKey(cfg *config.Config, key string) (string, error) {
	if err := checkConfigKey(key); err != nil {
		return "", err
	}
	return cfg.Get(key)
}

func configTargetPath(global bool) (string, error) {
	if global {
		return config.GlobalPath()
	}
	return config.ProjectPath()
}
