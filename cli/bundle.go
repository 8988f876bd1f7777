package main

import (
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/gammadia/batcher/cli/ui"
	"github.com/gammadia/batcher/internal/flags"
	"github.com/gammadia/batcher/log"
	"github.com/gammadia/batcher/sink"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle JOB-NAME",
	Short: "Archive a batch and its submission script to ship it to the cluster",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		runsDir := viper.GetString(flags.RunsDir)
		script := viper.GetString(flags.Script)
		for _, p := range []string{runsDir, script} {
			if filepath.IsAbs(p) {
				return fmt.Errorf("cannot bundle '%s': path must be relative to the current directory", p)
			}
		}

		root := sink.NewDir(".")
		batch := sink.OpenBatch(root.Scope(runsDir), args[0])
		indices, err := batch.Indices()
		if err != nil {
			return fmt.Errorf("failed to list batch '%s': %w", batch.JobName(), err)
		}
		if len(indices) == 0 {
			return fmt.Errorf("no job configurations found for '%s' in %s", batch.JobName(), batch.FS().HostPath(sink.JobsDir))
		}

		output := lo.Must(cmd.Flags().GetString("output"))
		if output == "" {
			output = batch.JobName() + ".tar.zst"
		}

		var spinner *ui.Spinner
		if !verbose() {
			spinner = ui.NewSpinner(fmt.Sprintf("Bundling %d job configurations", len(indices)))
		}
		paths := []string{path.Join(runsDir, batch.JobName(), sink.JobsDir), script}
		log.DebugContext(cmd.Context(), "Bundling batch", "job", batch.JobName(), "output", output, "paths", paths)
		if err := root.WriteFile(cmd.Context(), output, 0644, func(w io.Writer) error {
			return sink.Bundle(cmd.Context(), root, paths, w)
		}); err != nil {
			spinner.Fail()
			return fmt.Errorf("failed to bundle batch '%s': %w", batch.JobName(), err)
		}
		spinner.Success()

		cmd.Printf(color.HiGreenString("Wrote %s\n"), output)
		return nil
	},
}

func init() {
	bundleCmd.Flags().StringP("output", "o", "", "archive to write (default <job>.tar.zst)")
}
