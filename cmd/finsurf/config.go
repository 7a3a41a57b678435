package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configKeys are the keys `config set` accepts.
var configKeys = []string{
	"assembly",
	"chunksize",
	"load_unindexed",
	"log.level",
	"output_dir",
	"rank",
	"skip_invalid",
	"workers",
}

func newConfigCmd(v *viper.Viper, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage finsurf configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.finsurf.yaml.",
		Example: `  finsurf config                       # show all config
  finsurf config set chunksize 20000   # read larger chunks
  finsurf config get output_dir        # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(v, stdout)
		},
	}

	cmd.AddCommand(newConfigSetCmd(v, stdout))
	cmd.AddCommand(newConfigGetCmd(v, stdout))

	return cmd
}

func newConfigSetCmd(v *viper.Viper, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a configuration value",
		Args:      cobra.ExactArgs(2),
		ValidArgs: configKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(v, args[0], args[1], stdout)
		},
	}
}

func newConfigGetCmd(v *viper.Viper, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(v, args[0], stdout)
		},
	}
}

func runConfigShow(v *viper.Viper, w io.Writer) error {
	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "# %s\n", used)
	}
	fmt.Fprint(w, string(out))
	return nil
}

// parseConfigValue converts value to the type of key.
func parseConfigValue(key, value string) (any, error) {
	switch key {
	case "chunksize", "workers":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%s must be a positive integer, got %q", key, value)
		}
		return n, nil
	case "skip_invalid", "load_unindexed":
		switch value {
		case "true", "yes", "on":
			return true, nil
		case "false", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("%s must be true or false, got %q", key, value)
	case "rank":
		if value != "numeric" && value != "lexical" {
			return nil, fmt.Errorf("rank must be numeric or lexical, got %q", value)
		}
	}
	return value, nil
}

func runConfigSet(v *viper.Viper, key, value string, w io.Writer) error {
	i := sort.SearchStrings(configKeys, key)
	if i == len(configKeys) || configKeys[i] != key {
		return configError(fmt.Errorf("unknown key %q (known: %v)", key, configKeys))
	}
	val, err := parseConfigValue(key, value)
	if err != nil {
		return configError(err)
	}
	v.Set(key, val)

	cfgFile, err := configPath(v)
	if err != nil {
		return err
	}
	if err := v.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(w, "Set %s = %v in %s\n", key, val, cfgFile)
	return nil
}

func runConfigGet(v *viper.Viper, key string, w io.Writer) error {
	if !v.IsSet(key) {
		return configError(fmt.Errorf("key %q is not set", key))
	}
	fmt.Fprintln(w, v.Get(key))
	return nil
}
