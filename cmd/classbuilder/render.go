package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classbuilder/internal/asm"
	"classbuilder/internal/recipe"
)

var renderCmd = &cobra.Command{
	Use:   "render <recipe>",
	Short: "Print the pseudo-source of the classes a recipe generates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		only, _ := cmd.Flags().GetString("class")
		snapshot, _ := cmd.Flags().GetString("registry")
		m, err := loadManifest(cmd)
		if err != nil {
			return err
		}
		if snapshot == "" {
			snapshot = m.resolve(m.Config.Registry.Snapshot)
		}
		registry, err := loadRegistry(snapshot)
		if err != nil {
			return err
		}
		file, err := recipe.Load(args[0])
		if err != nil {
			return err
		}
		classes, err := recipe.Compile(file, registry, asm.Options{})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printed := 0
		for _, c := range classes {
			if only != "" && c.Name() != file.InternalName(only) && c.Name() != only {
				continue
			}
			if printed > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "// %s\n%s", c.Name(), c.Render())
			printed++
		}
		if only != "" && printed == 0 {
			return fmt.Errorf("recipe %s does not define class %s", args[0], only)
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().String("class", "", "render only this class")
	renderCmd.Flags().String("registry", "", "type snapshot merged over the JDK bootstrap")
}
