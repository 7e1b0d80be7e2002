package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/byase/byase-gui/internal/log"
	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/service"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	userConfigPath string // /default/config/path/byase on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	settings = viper.New()
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "byase")
}

func main() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file to load - default is byase.yaml in current directory or in "+userConfigPath)
	flags.Bool("verbose", false, "verbose logging")
	flags.String("engine", "", "path of the byase executable, overrides engine.path")
	flags.Duration("grace-period", 0, "time a cancelled engine gets to stop before it is killed")
	flags.String("log-output", "", "log destination: stderr, stdout, discard or a file path")

	for key, flag := range map[string]string{
		"config":              "config",
		"verbose":             "verbose",
		"engine.path":         "engine",
		"engine.grace_period": "grace-period",
		"log_output":          "log-output",
	} {
		if err := settings.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	// BYASE_CONFIG, BYASE_ENGINE_PATH, BYASE_ENGINE_KILL_TIMEOUT, ...
	settings.SetEnvPrefix("BYASE")
	settings.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	settings.AutomaticEnv()
	if err := settings.BindEnv("engine.kill_timeout"); err != nil {
		panic(err)
	}

	runCmd.Flags().StringVar(&flagFormat, "format", formatJSON, "status output: json (one object per line) or text")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse a config, setup logging
	rootCmd.PersistentPreRunE = initByase

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("byase-jobs failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "byase-jobs",
	Short:        "Runs BYASE analysis jobs and reports their progress",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run job.yaml [job.yaml...]",
	Short: "run submits the jobs and streams their status until all of them finished",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doRun,
}

var validateCmd = &cobra.Command{
	Use:   "validate [job.yaml...]",
	Short: "validate checks the job files and prints the effective configuration",
	RunE:  doValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a byase-jobs",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("byase-jobs: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("byase-jobs: %s\n", info.Main.Version)
		fmt.Printf("go:         %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:     %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:       %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:      %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doValidate(cmd *cobra.Command, args []string) error {
	var failed int
	for _, path := range args {
		if _, err := loadJob(path); err != nil {
			slog.Error("invalid job", "path", path, "err", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job files are invalid", failed, len(args))
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return enc.Close()
}

func initByase(cmd *cobra.Command, _ []string) error {
	if path := settings.GetString("config"); path != "" {
		configPath = path
	} else {
		for _, d := range []string{".", userConfigPath} {
			path := filepath.Join(d, "byase.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		config = model.DefaultConfig("byase")
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		cfg, err := model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error("invalid config", d.Attr("detail"))
			}
			return fmt.Errorf("parsing config: %w", err)
		}
		config = *cfg
	}

	// flags and environment have a precedence over config file
	overrides, err := service.ParseOverrides(settings)
	if err != nil {
		return fmt.Errorf("parsing overrides: %w", err)
	}
	config = overrides.Apply(config)

	w, err := logOutput(config.Log)
	if err != nil {
		return err
	}
	verbose := config.Log != nil && config.Log.Verbose != nil && *config.Log.Verbose
	slog.SetDefault(log.New(w, verbose))

	slog.Debug("byase-jobs", "configPath", configPath)
	slog.Debug("byase-jobs", "config", config)
	return nil
}

func logOutput(l *model.Log) (io.Writer, error) {
	if l == nil || l.Output == nil {
		return os.Stderr, nil
	}
	switch *l.Output {
	case "", model.LogStderr:
		return os.Stderr, nil
	case model.LogStdout:
		return os.Stdout, nil
	case model.LogDiscard:
		return io.Discard, nil
	default:
		// released when the process exits
		f, err := os.OpenFile(*l.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log output: %w", err)
		}
		return f, nil
	}
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
