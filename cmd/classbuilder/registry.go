package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"classbuilder/internal/asm"
	"classbuilder/internal/recipe"
	"classbuilder/internal/typeinfo"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and export type metadata snapshots",
}

var registryExportCmd = &cobra.Command{
	Use:   "export [recipes...]",
	Short: "Write the JDK bootstrap plus recipe classes to a snapshot",
	Long: `Write a type snapshot. The encoding follows the extension of --out:
.cbor is CBOR, anything else MessagePack. Classes generated by the given
recipes are added so other builds can reference them.`,
	RunE: runRegistryExport,
}

var registryShowCmd = &cobra.Command{
	Use:   "show [class...]",
	Short: "List the classes of a snapshot, or the members of some of them",
	RunE:  runRegistryShow,
}

func init() {
	registryExportCmd.Flags().StringP("out", "o", "", "snapshot file (.mp or .cbor)")
	registryExportCmd.Flags().Bool("no-bootstrap", false, "leave the JDK bootstrap classes out")
	_ = registryExportCmd.MarkFlagRequired("out")
	registryShowCmd.Flags().String("registry", "", "snapshot to show (default: JDK bootstrap)")
	registryCmd.AddCommand(registryExportCmd)
	registryCmd.AddCommand(registryShowCmd)
}

func runRegistryExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	noBoot, _ := cmd.Flags().GetBool("no-bootstrap")
	reg := typeinfo.NewRegistry()
	if !noBoot {
		reg = typeinfo.Bootstrap()
	}
	recipes, err := expandRecipes(args)
	if err != nil {
		return err
	}
	// later recipes may extend classes of earlier ones
	known := typeinfo.Bootstrap()
	for _, path := range recipes {
		file, err := recipe.Load(path)
		if err != nil {
			return err
		}
		classes, err := recipe.Compile(file, known, asm.Options{})
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, c := range classes {
			info := c.Info()
			reg.Add(info)
			known.Add(info)
		}
	}
	if err := typeinfo.SaveFile(out, reg); err != nil {
		return err
	}
	if !quiet(cmd) {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d classes to %s (%s)\n", reg.Len(), out, typeinfo.FormatFor(out))
	}
	return nil
}

func runRegistryShow(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("registry")
	reg := typeinfo.Bootstrap()
	if path != "" {
		loaded, err := typeinfo.LoadFile(path)
		if err != nil {
			return err
		}
		reg = loaded
	}
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		rows := [][]string{{"CLASS", "SUPER", "FIELDS", "METHODS"}}
		for _, name := range reg.Names() {
			c, _ := reg.Class(name)
			rows = append(rows, []string{name, c.Super, fmt.Sprint(len(c.Fields)), fmt.Sprint(len(c.Methods))})
		}
		printTable(out, rows)
		return nil
	}
	for i, name := range args {
		c, ok := reg.Class(strings.ReplaceAll(name, ".", "/"))
		if !ok {
			return fmt.Errorf("class %s is not in the registry", name)
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		showClass(out, c)
	}
	return nil
}

func showClass(out io.Writer, c *typeinfo.Class) {
	heading := color.New(color.Bold)
	heading.Fprintln(out, c.Name)
	if c.Super != "" {
		fmt.Fprintf(out, "  extends %s\n", c.Super)
	}
	if len(c.Interfaces) > 0 {
		fmt.Fprintf(out, "  implements %s\n", strings.Join(c.Interfaces, ", "))
	}
	rows := [][]string{}
	for _, f := range c.Fields {
		rows = append(rows, []string{"  field", f.Name, f.Descriptor()})
	}
	methods := append([]*typeinfo.Method(nil), c.Methods...)
	sort.SliceStable(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })
	for _, m := range methods {
		rows = append(rows, []string{"  method", m.Name, m.Descriptor()})
	}
	printTable(out, rows)
}
