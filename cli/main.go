package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/gammadia/batcher/internal/flags"
	"github.com/gammadia/batcher/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

var batcherCmd = &cobra.Command{
	Use:   "batcher",
	Short: "Batcher expands a parameter grid into a Slurm array job.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Flags of the running command, its own and the inherited ones
		if err := flags.Init(cmd.Flags()); err != nil {
			return err
		}
		return log.Init()
	},
}

func init() {
	batcherCmd.AddCommand(bundleCmd)
	batcherCmd.AddCommand(completionCmd)
	batcherCmd.AddCommand(generateCmd)
	batcherCmd.AddCommand(showCmd)
	batcherCmd.AddCommand(versionCmd)

	flags.RegisterGlobal(batcherCmd.PersistentFlags())
}

func verbose() bool {
	return viper.GetBool(flags.Verbose)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batcherCmd.SetOut(os.Stdout)
	if err := batcherCmd.ExecuteContext(ctx); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, color.HiRedString(fmt.Sprint(err))))
		os.Exit(1)
	}
}
