// Package cli implements the prospector command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/goldrush/internal/config"
	"github.com/mesh-intelligence/goldrush/internal/logging"
	"github.com/mesh-intelligence/goldrush/internal/paths"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// defaultEnvFile is loaded when present and --env-file is not given.
const defaultEnvFile = ".env"

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configFile string
	envFile    string
	jsonMode   bool
}

// app is the state shared by one command tree.
type app struct {
	flags rootFlags
	v     *viper.Viper
}

// NewRootCmd creates the top-level "prospector" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "prospector",
		Short: "An autonomous treasure prospecting agent",
		Long: "Prospector scans a grid through the game server, narrows hot areas down to\n" +
			"single cells, digs them under licenses and cashes what it finds.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "config file (default: .goldrush/config.yaml)")
	pf.StringVar(&a.flags.envFile, "env-file", "", "dotenv file loaded before reading the environment (default: .env if present)")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.String("address", "", "game server address")
	pf.Int("port", 0, "game server port")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (text, json)")
	a.bindFlag(root, "address", config.KeyAddress)
	a.bindFlag(root, "port", config.KeyPort)
	a.bindFlag(root, "log-level", config.KeyLogLevel)
	a.bindFlag(root, "log-format", config.KeyLogFormat)

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newPartitionsCmd(a))
	root.AddCommand(newRunCmd(a))
	root.AddCommand(newSurveyCmd(a))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	switch {
	case err == nil:
		os.Exit(exitSuccess)
	case isUserError(err):
		os.Exit(exitUserError)
	default:
		os.Exit(exitSysError)
	}
}

// userError marks errors caused by flags or configuration.
type userError struct{ err error }

func (e userError) Error() string { return e.err.Error() }
func (e userError) Unwrap() error { return e.err }

func isUserError(err error) bool {
	var ue userError
	return errors.As(err, &ue)
}

// bindFlag makes viper read key from the named flag of cmd when the flag is
// set. Persistent flags are looked up first.
func (a *app) bindFlag(cmd *cobra.Command, name, key string) {
	flag := cmd.PersistentFlags().Lookup(name)
	if flag == nil {
		flag = cmd.Flags().Lookup(name)
	}
	// BindPFlag only fails on a nil flag.
	_ = a.v.BindPFlag(key, flag)
}

// loadConfig merges the dotenv file, the config file, the environment and
// the flags into one Config.
func (a *app) loadConfig() (config.Config, error) {
	if err := a.loadEnvFile(); err != nil {
		return config.Config{}, userError{err}
	}
	path, err := paths.ResolveConfigFile(a.flags.configFile)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.ReadFile(a.v, path); err != nil {
		return config.Config{}, userError{err}
	}
	return config.FromViper(a.v), nil
}

// loadEnvFile loads --env-file, or .env when it exists. Variables already
// set in the environment win.
func (a *app) loadEnvFile() error {
	if a.flags.envFile != "" {
		if err := godotenv.Load(a.flags.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if _, err := os.Stat(defaultEnvFile); err != nil {
		return nil
	}
	if err := godotenv.Load(defaultEnvFile); err != nil {
		return fmt.Errorf("load %s: %w", defaultEnvFile, err)
	}
	return nil
}

// logger builds the logger for cfg, writing to the command's stderr.
func (a *app) logger(cmd *cobra.Command, cfg config.Config) (*logrus.Logger, error) {
	log, err := logging.NewWithOutput(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, userError{err}
	}
	return log, nil
}
