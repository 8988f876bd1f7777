package main

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/fatih/color"
	"github.com/gammadia/batcher/cli/ui"
	"github.com/gammadia/batcher/emitter"
	"github.com/gammadia/batcher/grid"
	"github.com/gammadia/batcher/gridfile"
	"github.com/gammadia/batcher/internal/flags"
	"github.com/gammadia/batcher/log"
	"github.com/gammadia/batcher/namegen"
	"github.com/gammadia/batcher/sink"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var generateCmd = &cobra.Command{
	Use:     "generate [JOB-NAME] MAX-TIME",
	Aliases: []string{"gen"},
	Short:   "Write the job configurations and the submission script of a batch",
	Long: `Expands the option grid into every combination of its values, writes each
one to <runs-dir>/<job>/jobs/<index>.json and writes a submission script
running one array task per combination.

MAX-TIME may be omitted when the gridfile sets dispatch.time, JOB-NAME when
the gridfile sets a name.`,
	Args: cobra.MaximumNArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		jobName, maxTime := "", ""
		switch len(args) {
		case 2:
			jobName, maxTime = args[0], args[1]
		case 1:
			maxTime = args[0]
		}

		options, gf, err := loadGrid(cmd)
		if err != nil {
			return err
		}
		normalized, err := options.Normalize()
		if err != nil {
			return err
		}

		dispatch, err := resolveDispatch(jobName, maxTime, gf)
		if err != nil {
			return err
		}
		log.InfoContext(cmd.Context(), "Resolved dispatch", "job", dispatch.JobName, "time", dispatch.Time, "mem-per-cpu", dispatch.MemPerCPU, "cpus-per-task", dispatch.CPUsPerTask, "jobs", normalized.Count())

		tmpl, err := loadTemplate(flags.StringOr(flags.Template, ""))
		if err != nil {
			return err
		}

		runsDir := viper.GetString(flags.RunsDir)
		script := viper.GetString(flags.Script)
		config := emitter.Config{
			Dispatch: dispatch,
			Layout:   emitter.DefaultLayout(runsDir, dispatch.JobName),
			Template: tmpl,
			Logger:   log.FromContext(cmd.Context()),
		}

		dryRun := lo.Must(cmd.Flags().GetBool("dry-run"))
		if dryRun {
			printer := &sink.Writer{W: cmd.OutOrStdout()}
			config.Artifacts, config.Script = printer, printer
		} else {
			root := sink.NewDir(".")
			batch, err := sink.NewBatch(root.Scope(runsDir), dispatch.JobName)
			if err != nil {
				return fmt.Errorf("failed to create batch '%s': %w", dispatch.JobName, err)
			}
			if err := root.MkDir(path.Dir(script)); err != nil {
				return fmt.Errorf("failed to create script directory: %w", err)
			}
			config.Artifacts = batch
			config.Script = &sink.ScriptFile{FS: root, Path: script}
		}

		var spinner *ui.Spinner
		if !verbose() && !dryRun {
			spinner = ui.NewSpinner("Writing job configurations")
		}
		total := normalized.Count()
		config.OnArtifact = func(index int) {
			spinner.UpdateMessage(fmt.Sprintf("Writing job configurations (%d/%d)", index, total))
		}

		e, err := emitter.New(config)
		if err != nil {
			spinner.Fail()
			return err
		}
		count, err := e.Emit(cmd.Context(), normalized.All())
		if err != nil {
			spinner.Fail()
			return fmt.Errorf("failed to generate batch '%s': %w", dispatch.JobName, err)
		}
		spinner.Success(fmt.Sprintf("Wrote %d job configurations", count))

		if dryRun {
			return nil
		}
		cmd.Printf("Wrote JSON and %s with %d jobs.\n", script, count)
		cmd.Printf("Submit it with: %s\n", color.HiCyanString("sbatch %s", shellescape.Quote(script)))
		return nil
	},
}

func init() {
	generateCmd.Flags().Bool("quick", false, "use the smallest cardinalities, for smoke tests")
	generateCmd.Flags().StringP("grid", "f", "", "gridfile defining the options (.yaml, .yml or .hcl)")
	generateCmd.Flags().StringArrayP("arg", "a", nil, "gridfile arguments, available as .Args")
	generateCmd.Flags().StringArrayP("param", "p", nil, "gridfile parameters to set")
	generateCmd.Flags().StringArrayP("set", "s", nil, "set an option, the value is parsed as YAML (name=value)")
	generateCmd.Flags().BoolP("dry-run", "n", false, "print the jobs and the script without writing anything")
	flags.RegisterDispatch(generateCmd.Flags())
}

// loadGrid returns the options of the batch, from the gridfile if one is given
// or the built-in grid, with the --set overrides applied.
func loadGrid(cmd *cobra.Command) (grid.Grid, *gridfile.Gridfile, error) {
	quick := lo.Must(cmd.Flags().GetBool("quick"))

	var options grid.Grid
	var gf *gridfile.Gridfile
	if file := lo.Must(cmd.Flags().GetString("grid")); file != "" {
		var err error
		gf, err = gridfile.Read(file, gridfile.ReadOptions{
			Args:   lo.Must(cmd.Flags().GetStringArray("arg")),
			Params: lo.SliceToMap(lo.Must(cmd.Flags().GetStringArray("param")), func(item string) (key, value string) { key, value, _ = strings.Cut(item, "="); return }),
			Quick:  quick,
		})
		if err != nil {
			if e, ok := err.(gridfile.UnmarshalError); ok && verbose() {
				cmd.PrintErrln(e.Source)
			}
			return nil, nil, fmt.Errorf("failed to read grid from '%s': %w", file, err)
		}
		options = gf.Options
		log.Debug("Read gridfile", "file", file, "options", len(options))
	} else {
		options = gridfile.Default(quick)
	}

	for _, assignment := range lo.Must(cmd.Flags().GetStringArray("set")) {
		option, err := gridfile.ParseOverride(assignment)
		if err != nil {
			return nil, nil, err
		}
		options = options.With(option.Name, option.Value)
	}
	return options, gf, nil
}

// resolveJobName picks the first of the given name, the gridfile name and a
// generated one.
func resolveJobName(name string, gf *gridfile.Gridfile) string {
	if name != "" {
		return name
	}
	if gf != nil && gf.Name != "" {
		return gf.Name
	}
	generated := namegen.JobName()
	log.Warn("No job name given, using a generated one", "name", generated)
	return generated
}

func resolveDispatch(jobName, maxTime string, gf *gridfile.Gridfile) (emitter.Dispatch, error) {
	defaults := lo.FromPtr(gf).Dispatch
	if maxTime == "" {
		maxTime = defaults.Time
	}
	if maxTime == "" {
		return emitter.Dispatch{}, fmt.Errorf("MAX-TIME is required when the gridfile does not set dispatch.time")
	}

	dispatch := emitter.Dispatch{
		JobName:     resolveJobName(jobName, gf),
		Time:        maxTime,
		MemPerCPU:   flags.IntOr(flags.MemPerCPU, defaults.MemPerCPU),
		CPUsPerTask: flags.IntOr(flags.CPUsPerTask, defaults.CPUsPerTask),
	}
	return dispatch, dispatch.Validate()
}

// loadTemplate returns the submission script template in file, or the default
// one.
func loadTemplate(file string) (*emitter.Template, error) {
	if file == "" {
		return emitter.DefaultTemplate, nil
	}

	source, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	tmpl, err := emitter.ParseTemplate(path.Base(file), string(source))
	if err != nil {
		return nil, fmt.Errorf("invalid template '%s': %w", file, err)
	}
	return tmpl, nil
}
