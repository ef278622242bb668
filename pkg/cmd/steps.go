package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobase/agent-build/pkg/pipeline"
)

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "Lists the build steps",
		Long:  `Lists the build steps in execution order. The names can be passed to --from and --only.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			steps := pipeline.Steps()

			maxNameLen := 0
			for _, step := range steps {
				if len(step.Name) > maxNameLen {
					maxNameLen = len(step.Name)
				}
			}

			lineFmt := fmt.Sprintf(" * %%-%ds %%s%%s\n", maxNameLen+3)
			for _, step := range steps {
				suffix := ""
				if step.Enabled != nil {
					suffix = " (optional)"
				}
				fmt.Fprintf(out, lineFmt, step.Name+":", step.Desc, suffix)
			}
		},
	}
}
