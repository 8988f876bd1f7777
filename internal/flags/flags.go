package flags

import (
	"errors"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	Config    = "config"
	LogFormat = "log-format"
	LogLevel  = "log-level"
	LogSource = "log-source"
	Verbose   = "verbose"

	RunsDir = "runs-dir"
	Script  = "script"

	CPUsPerTask = "cpus-per-task"
	MemPerCPU   = "mem-per-cpu"
	Template    = "template"
)

const (
	DefaultCPUsPerTask = 8
	DefaultMemPerCPU   = 5000
	DefaultRunsDir     = "runs"
	DefaultScript      = "run.sbatch"
)

// RegisterGlobal adds the flags shared by every command.
func RegisterGlobal(flags *flag.FlagSet) {
	flags.String(Config, "", "config file (default ./.batcher.yaml or $HOME/.batcher.yaml)")
	flags.String(LogFormat, "text", "log format (json, text)")
	flags.String(LogLevel, "WARN", "minimum log level")
	flags.Bool(LogSource, false, "add source code location to logs")
	flags.BoolP(Verbose, "v", false, "verbose output")

	flags.String(RunsDir, DefaultRunsDir, "directory holding the batches")
	flags.String(Script, DefaultScript, "path of the submission script")
}

// RegisterDispatch adds the flags tuning the scheduler resources.
func RegisterDispatch(flags *flag.FlagSet) {
	flags.Int(MemPerCPU, DefaultMemPerCPU, "memory per CPU in megabytes")
	flags.Int(CPUsPerTask, DefaultCPUsPerTask, "CPUs allocated to each task")
	flags.String(Template, "", "submission script template (default is the built-in sbatch script)")
}

// Init binds the flags to viper, along with the BATCHER_* environment and the
// config file.
func Init(flags *flag.FlagSet) error {
	viper.SetEnvPrefix("batcher")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(flags); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if file := viper.GetString(Config); file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName(".batcher")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// IntOr returns the configured value of key, or fallback when neither a flag,
// the environment nor the config file sets it. A zero fallback keeps the flag
// default.
func IntOr(key string, fallback int) int {
	if viper.IsSet(key) || fallback == 0 {
		return viper.GetInt(key)
	}
	return fallback
}

// StringOr is IntOr for strings.
func StringOr(key string, fallback string) string {
	if viper.IsSet(key) || fallback == "" {
		return viper.GetString(key)
	}
	return fallback
}
