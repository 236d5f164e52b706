// Package cli implements the trellis command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trellis-io/trellis/internal/config"
	"github.com/trellis-io/trellis/internal/db"
	"github.com/trellis-io/trellis/internal/events"
	"github.com/trellis-io/trellis/internal/filestore"
	"github.com/trellis-io/trellis/internal/manager"
)

var (
	cfgFile string
	workDir string
	verbose bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trellis",
	Short: "Hierarchical task storage with plain-file truth",
	Long: `trellis stores tasks as markdown files mirrored into an embedded
SQLite index. Files stay readable and editable by hand; the index gives
fast tree queries over a four-tier hierarchy (master > epic > task >
subtask).

Quick start:
  trellis init                      Initialize trellis in this directory
  trellis add "Ship the feature"    Create a master task
  trellis tree                      Show the whole hierarchy
  trellis serve                     Start the dashboard API and watcher`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .trellis/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "work directory holding the .trellis data")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newTreeCmd())
	rootCmd.AddCommand(newMoveCmd())
	rootCmd.AddCommand(newEditCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newLinkCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(filepath.Join(workDir, ".trellis"))
		viper.AddConfigPath("$HOME/.trellis")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TRELLIS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// engine bundles the open storage stack for one command invocation.
type engine struct {
	cfg   *config.Config
	idx   *db.Index
	files *filestore.Store
	pub   *events.MemoryPublisher
	mgr   *manager.Manager
}

// openEngine loads the config and opens the index for an initialized
// work directory.
func openEngine() (*engine, error) {
	if !isInitialized(workDir) {
		return nil, fmt.Errorf("trellis is not initialized here. Run 'trellis init' first")
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg)

	idx, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	files := filestore.New(cfg.TasksRoot)
	pub := events.NewMemoryPublisher()
	mgr := manager.New(idx, files, cfg,
		manager.WithPublisher(pub),
		manager.WithLogger(cliLogger()),
	)

	return &engine{cfg: cfg, idx: idx, files: files, pub: pub, mgr: mgr}, nil
}

func (e *engine) close() {
	e.pub.Close()
	if err := e.idx.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close index:", err)
	}
}

// applyOverrides layers viper's merged view, the config file plus any
// TRELLIS_* environment variables, over the loaded config. Env wins.
func applyOverrides(cfg *config.Config) {
	if v := viper.GetString("tasks_root"); v != "" {
		cfg.TasksRoot = v
	}
	if v := viper.GetString("db_path"); v != "" {
		cfg.DBPath = v
	}
	if v := viper.GetString("default_project"); v != "" {
		cfg.DefaultProject = v
	}
	if v := viper.GetString("server.addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := viper.GetInt("watcher.debounce_ms"); v > 0 {
		cfg.Watcher.DebounceMs = v
	}
	if viper.IsSet("watcher.enabled") {
		cfg.Watcher.Enabled = viper.GetBool("watcher.enabled")
	}
	if v := viper.GetInt("max_subtree_warn"); v > 0 {
		cfg.MaxSubtreeWarn = v
	}
}

func isInitialized(dir string) bool {
	_, err := os.Stat(config.Path(dir))
	return err == nil
}

// cliLogger returns a logger that stays quiet unless --verbose is set.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
