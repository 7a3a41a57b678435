// Package main provides the finsurf command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// configName is the base name of the user configuration file in $HOME.
const configName = ".finsurf"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var uerr *usageError
	if errors.As(err, &uerr) {
		fmt.Fprintf(stderr, "Error: %v\n\n%s", uerr.err, uerr.usage)
		return ExitUsage
	}

	rerr := classify(err)
	fmt.Fprintf(stderr, "Error [%s]: %s\n", rerr.Code, rerr.Message)
	return ExitError
}

// usageError reports bad command-line arguments.
type usageError struct {
	err   error
	usage string
}

func (e *usageError) Error() string { return e.err.Error() }

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)
	v := viper.New()

	root := &cobra.Command{
		Use:   "finsurf",
		Short: "Annotate and rank non-coding variants with FINSURF scores",
		Long: `finsurf intersects variants with regulatory elements and their functional
scores, and writes a table of annotated variants ranked by score.`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(v, cfgFile); err != nil {
				return err
			}
			if verbose {
				v.Set("log.level", "debug")
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("finsurf version {{.Version}}\n")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err, usage: cmd.UsageString()}
	})

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/"+configName+".yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every pipeline stage")

	root.AddCommand(newAnnotateCmd(v, stdout, stderr))
	root.AddCommand(newFilterCmd(v, stdout, stderr))
	root.AddCommand(newChromsCmd(stdout))
	root.AddCommand(newConfigCmd(v, stdout))

	return root
}

// setDefaults registers the default value of every configuration key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("chunksize", 5000)
	v.SetDefault("output_dir", "./res")
	v.SetDefault("workers", 1)
	v.SetDefault("assembly", "")
	v.SetDefault("rank", "numeric")
	v.SetDefault("skip_invalid", false)
	v.SetDefault("load_unindexed", false)
	v.SetDefault("log.level", "info")
}

// initConfig reads ~/.finsurf.yaml (or cfgFile) and FINSURF_* environment
// variables into v.
func initConfig(v *viper.Viper, cfgFile string) error {
	setDefaults(v)
	v.SetEnvPrefix("FINSURF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// configPath returns the file `config set` writes to.
func configPath(v *viper.Viper) (string, error) {
	if f := v.ConfigFileUsed(); f != "" {
		return f, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, configName+".yaml"), nil
}

// newLogger builds a console logger on w at the given level.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}
