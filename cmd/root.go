package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jcsh/internal/config"
	"jcsh/internal/executor"
	"jcsh/internal/history"
	"jcsh/internal/jobs"
	"jcsh/internal/log"
	"jcsh/internal/repl"
	"jcsh/internal/signals"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
	cfgErr  error
)

// ExitError carries the shell's exit status out of Execute.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

var rootCmd = &cobra.Command{
	Use:           "jcsh",
	Short:         "An interactive shell with job control",
	Long:          `jcsh runs commands and two-stage pipelines in their own process groups, with fg, jobs, cd and exit built in.`,
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runShell,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/jcsh/config.yaml)")
	rootCmd.Flags().String("history", "", "history file (default: ~/.jcsh_history)")
	rootCmd.Flags().Bool("no-history", false, "do not load or save history")
	rootCmd.Flags().Bool("debug", false, "write a debug log")
	rootCmd.Flags().String("prompt", "", "prompt text")

	_ = viper.BindPFlag("history.file", rootCmd.Flags().Lookup("history"))
	_ = viper.BindPFlag("log.debug", rootCmd.Flags().Lookup("debug"))
	_ = viper.BindPFlag("prompt", rootCmd.Flags().Lookup("prompt"))
}

func initConfig() {
	cfg, cfgErr = readConfig(viper.GetViper(), cfgFile)
}

// readConfig layers defaults, the config file and JCSH_* variables onto v.
// Without an explicit path a default file is written on first run.
func readConfig(v *viper.Viper, path string) (config.Config, error) {
	config.SetDefaults(v)
	v.SetEnvPrefix("JCSH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	target := path
	if target == "" {
		target = config.DefaultPath()
	}
	if target == "" {
		log.Warn(log.CatConfig, "home directory unknown, using built-in defaults")
		return config.Load(v)
	}
	v.SetConfigFile(target)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case path == "" && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)):
			if writeErr := config.WriteDefault(target); writeErr != nil {
				log.ErrorErr(log.CatConfig, "could not write default config", writeErr)
			}
		default:
			return config.Config{}, fmt.Errorf("reading config: %w", err)
		}
	}
	return config.Load(v)
}

func runShell(cmd *cobra.Command, _ []string) error {
	if cfgErr != nil {
		return cfgErr
	}
	if noHistory, _ := cmd.Flags().GetBool("no-history"); noHistory {
		cfg.History.Enabled = false
	}

	if cfg.Log.Debug {
		cleanup, err := log.Init(cfg.Log.File, slog.LevelDebug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jcsh: debug log: %v\n", err)
		} else {
			defer cleanup()
		}
	}
	log.Info(log.CatConfig, "starting", "version", version, "config", viper.ConfigFileUsed())

	signals.Setup()

	inbox := make(chan jobs.Message, 64)
	replies := make(chan jobs.Reply)

	sys := executor.NewSystem(os.Stdin, os.Stdout, os.Stderr)
	shellPgid := executor.ShellGroup()
	if fg, err := sys.Foreground(); err == nil && fg != shellPgid {
		log.Warn(log.CatRepl, "shell does not own the terminal", "shell_pgid", shellPgid, "foreground", fg)
	}
	worker := jobs.NewWorker(sys, replies, jobs.Options{
		ShellPgid: shellPgid,
		MaxJobs:   cfg.Jobs.Max,
	})

	rl, err := repl.NewReadline(cfg.Prompt, cfg.History.Limit)
	if err != nil {
		return fmt.Errorf("starting line editor: %w", err)
	}
	closeEditor := sync.OnceValue(rl.Close)
	defer func() { _ = closeEditor() }()

	fatal := superviseWorker(func() error { return worker.Run(inbox) }, replies, func() { _ = closeEditor() })
	signals.Relay(inbox)

	var store *history.Store
	if cfg.History.Enabled {
		store = history.New(cfg.History.File, cfg.History.Limit)
	}

	shell := repl.New(rl, inbox, replies, repl.Options{
		Prompt:      cfg.Prompt,
		Interactive: sys.IsTTY(),
		History:     store,
		Output:      termenv.NewOutput(os.Stdout),
		Stderr:      os.Stderr,
	})
	code := shell.Run()

	select {
	case err := <-fatal:
		return fmt.Errorf("job control stopped: %w", err)
	default:
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// superviseWorker runs the Worker loop in the background. When it
// stops, replies is closed and release is called so a front end blocked
// on a reply or on line input returns and runs its cleanup. A failure is
// delivered on the returned channel before replies is closed.
func superviseWorker(run func() error, replies chan<- jobs.Reply, release func()) <-chan error {
	fatal := make(chan error, 1)
	go func() {
		if err := run(); err != nil {
			log.ErrorErr(log.CatWorker, "worker stopped", err)
			fatal <- err
		}
		close(replies)
		release()
	}()
	return fatal
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
