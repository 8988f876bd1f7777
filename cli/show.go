package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/gammadia/batcher/internal/flags"
	"github.com/gammadia/batcher/log"
	"github.com/gammadia/batcher/sink"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var showCmd = &cobra.Command{
	Use:   "show JOB-NAME [INDEX...]",
	Short: "Show the job configurations of a batch",
	Args:  cobra.MinimumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		batch := sink.OpenBatch(sink.NewDir(viper.GetString(flags.RunsDir)), args[0])

		indices, err := parseIndices(args[1:])
		if err != nil {
			return err
		}
		if len(indices) == 0 {
			if indices, err = batch.Indices(); err != nil {
				return fmt.Errorf("failed to list batch '%s': %w", batch.JobName(), err)
			}
			if len(indices) == 0 {
				return fmt.Errorf("no job configurations found for '%s' in %s", batch.JobName(), batch.FS().HostPath(sink.JobsDir))
			}
		}

		log.Debug("Showing job configurations", "job", batch.JobName(), "count", len(indices))
		printer := &sink.Writer{W: cmd.OutOrStdout()}
		for _, index := range indices {
			job, err := batch.ReadArtifact(index)
			if err != nil {
				return err
			}
			if err := printer.WriteArtifact(cmd.Context(), index, job); err != nil {
				return err
			}
		}

		cmd.PrintErrf("%-8s %s\n%-8s %d\n", "Job:", color.HiCyanString(batch.JobName()), "Count:", len(indices))
		return nil
	},
}

func parseIndices(args []string) ([]int, error) {
	indices := make([]int, 0, len(args))
	for _, arg := range args {
		index, err := strconv.Atoi(arg)
		if err != nil || index < 1 {
			return nil, fmt.Errorf("invalid index '%s'", arg)
		}
		indices = append(indices, index)
	}
	return indices, nil
}
