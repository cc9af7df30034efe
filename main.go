// Package main provides the entry point for the narrator CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/narrator/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	cfg        = config.Default()
	environ    config.Env

	rootCmd = &cobra.Command{
		Use:   "narrator",
		Short: "Turn books into chapter audio and listen to it",
		Long: paragraph(
			fmt.Sprintf("\nRecord a book's chapters with a speech service and %s, chapter by chapter.", keyword("play them back")),
		),
		SilenceErrors:     false,
		SilenceUsage:      true,
		TraverseChildren:  true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: loadConfig,
	}
)

// loadConfig resolves the effective configuration: defaults, then the
// config file, then NARRATOR_* variables, then flags.
func loadConfig(*cobra.Command, []string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	e, err := config.ParseEnv()
	if err != nil {
		return err
	}
	environ = e

	c, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = c

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("configuration loaded", "library", cfg.Library.Path, "artifacts", cfg.Artifacts.Dir)
	return nil
}

// useTUI reports whether interactive views should be shown.
func useTUI(noTUI bool) bool {
	return !noTUI && !environ.NoTUI && term.IsTerminal(int(os.Stdout.Fd()))
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().Bool("debug", false, "write debug output to the log file")
	rootCmd.PersistentFlags().String("library", "", "path to the library database")
	rootCmd.PersistentFlags().String("audio-dir", "", "directory recorded audio is written to")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("library.path", rootCmd.PersistentFlags().Lookup("library"))
	_ = viper.BindPFlag("artifacts.dir", rootCmd.PersistentFlags().Lookup("audio-dir"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(chaptersCmd, recordCmd, playCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := config.ConfigDirs()
	if err != nil || len(dirs) == 0 {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], config.AppName+".yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
