package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"classbuilder/internal/asm"
	"classbuilder/internal/buildcache"
	"classbuilder/internal/buildpipeline"
	"classbuilder/internal/diagfmt"
	"classbuilder/internal/observ"
	"classbuilder/internal/recipe"
	"classbuilder/internal/typeinfo"
	"classbuilder/internal/version"
)

var buildCmd = &cobra.Command{
	Use:   "build [recipes or dirs...]",
	Short: "Compile recipes into class files",
	Long: `Compile TOML or YAML class recipes into JVM class files.
Directories are searched recursively for .toml, .yaml and .yml recipes.
Without arguments the recipes listed in classbuilder.toml are built.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringP("out", "o", "", "output directory (default from classbuilder.toml, else ./classes)")
	buildCmd.Flags().Bool("debug", false, "emit LineNumberTable, LocalVariableTable and SourceFile")
	buildCmd.Flags().Bool("render", false, "write a "+buildpipeline.RenderExt+" rendering next to each class")
	buildCmd.Flags().Int("jobs", 0, "max parallel recipes (0=auto)")
	buildCmd.Flags().String("registry", "", "type snapshot (.mp or .cbor) merged over the JDK bootstrap")
	buildCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	buildCmd.Flags().Bool("dry-run", false, "compile and serialize without writing")
	buildCmd.Flags().String("format", "pretty", "diagnostics format (pretty|json)")
	buildCmd.Flags().Bool("cache", false, "reuse classes of unchanged recipes from the build cache")
	buildCmd.Flags().String("path-mode", "auto", "diagnostic paths (auto|absolute|relative|basename)")
}

// buildSettings are the resolved flag and manifest values for one build.
type buildSettings struct {
	out      string
	jobs     int
	render   bool
	dryRun   bool
	format   string
	pathMode diagfmt.PathMode
	ui       uiMode
	snapshot string
	cache    bool
	cacheDir string
	opts     asm.Options
}

func resolveBuildSettings(cmd *cobra.Command, m *manifest) (*buildSettings, error) {
	flags := cmd.Flags()
	s := &buildSettings{
		out:      m.resolve(m.Config.Output.Dir),
		jobs:     m.Config.Build.Jobs,
		render:   m.Config.Output.Render,
		snapshot: m.resolve(m.Config.Registry.Snapshot),
		cache:    m.Config.Build.Cache,
		cacheDir: m.resolve(m.Config.Build.CacheDir),
		opts: asm.Options{
			Major:     m.Config.Class.Major,
			Minor:     m.Config.Class.Minor,
			Debug:     m.Config.Class.Debug,
			MaxLocals: m.Config.Class.MaxLocals,
		},
	}
	if flags.Changed("out") {
		s.out, _ = flags.GetString("out")
	}
	if s.out == "" {
		s.out = "classes"
	}
	if flags.Changed("jobs") {
		s.jobs, _ = flags.GetInt("jobs")
	}
	if flags.Changed("render") {
		s.render, _ = flags.GetBool("render")
	}
	if flags.Changed("debug") {
		s.opts.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("registry") {
		s.snapshot, _ = flags.GetString("registry")
	}
	if flags.Changed("cache") {
		s.cache, _ = flags.GetBool("cache")
	}
	s.dryRun, _ = flags.GetBool("dry-run")

	format, _ := flags.GetString("format")
	s.format = strings.ToLower(strings.TrimSpace(format))
	if s.format != "pretty" && s.format != "json" {
		return nil, fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	modeStr, _ := flags.GetString("path-mode")
	mode, ok := diagfmt.ParsePathMode(modeStr)
	if !ok {
		return nil, fmt.Errorf("invalid --path-mode value %q", modeStr)
	}
	s.pathMode = mode
	uiStr, _ := flags.GetString("ui")
	ui, err := readUIMode(uiStr)
	if err != nil {
		return nil, err
	}
	s.ui = ui
	if s.jobs < 0 {
		return nil, fmt.Errorf("--jobs must not be negative")
	}
	return s, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(cmd)
	if err != nil {
		return err
	}
	settings, err := resolveBuildSettings(cmd, m)
	if err != nil {
		return err
	}
	inputs := args
	if len(inputs) == 0 {
		for _, p := range m.Config.Build.Recipes {
			inputs = append(inputs, m.resolve(p))
		}
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no recipes given and none listed in %s", configName)
	}
	recipes, err := expandRecipes(inputs)
	if err != nil {
		return err
	}
	if len(recipes) == 0 {
		return fmt.Errorf("no recipe files found")
	}
	registry, err := loadRegistry(settings.snapshot)
	if err != nil {
		return err
	}

	var cache *buildcache.Cache
	var salt string
	if settings.cache {
		if cache, err = openCache(settings.cacheDir); err != nil {
			return err
		}
		if salt, err = cacheSalt(settings.snapshot); err != nil {
			return err
		}
	}

	showTimings, _ := cmd.Root().PersistentFlags().GetBool("timings")
	maxDiag, _ := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	var timer *observ.Timer
	if showTimings {
		timer = observ.NewTimer()
	}
	req := &buildpipeline.Request{
		Recipes:        recipes,
		OutputDir:      settings.out,
		Jobs:           settings.jobs,
		Registry:       registry,
		Options:        settings.opts,
		Render:         settings.render,
		DryRun:         settings.dryRun,
		Cache:          cache,
		CacheSalt:      salt,
		Timer:          timer,
		MaxDiagnostics: maxDiag,
	}

	start := time.Now()
	var res *buildpipeline.Result
	if settings.format == "pretty" && !quiet(cmd) && shouldUseTUI(settings.ui, len(recipes)) {
		res, err = runBuildWithUI(cmd.Context(), "build", req)
	} else {
		res, err = buildpipeline.Build(cmd.Context(), req)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	out := cmd.OutOrStdout()
	if settings.format == "json" {
		if err := diagfmt.JSON(out, res.Bag, diagfmt.JSONOpts{PathMode: settings.pathMode, Max: maxDiag}); err != nil {
			return err
		}
	} else {
		if err := diagfmt.Pretty(cmd.ErrOrStderr(), res.Bag, diagfmt.PrettyOpts{
			Color:     colorEnabled(),
			PathMode:  settings.pathMode,
			ShowTitle: true,
		}); err != nil {
			return err
		}
		if !quiet(cmd) {
			printOutputs(out, res.Outputs, settings.dryRun)
			fmt.Fprintf(out, "%d class(es) from %d recipe(s) in %.1f ms", len(res.Outputs), len(recipes), toMillis(elapsed))
			if cache != nil {
				fmt.Fprintf(out, ", %d cached", res.CacheHits())
			}
			fmt.Fprintln(out)
		}
	}
	if showTimings {
		printStageTimings(cmd.ErrOrStderr(), res.Timings)
		fmt.Fprintln(cmd.ErrOrStderr(), timer.Summary())
	}
	if res.Failed() {
		return fmt.Errorf("build failed with %d diagnostic(s)", res.Bag.Len())
	}
	return nil
}

// expandRecipes replaces directories with the recipe files under them.
// Duplicates are dropped and the result is sorted.
func expandRecipes(inputs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", in, err)
		}
		if !info.IsDir() {
			add(in)
			continue
		}
		err = filepath.WalkDir(in, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != in && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Name() == configName {
				return nil
			}
			if _, ferr := recipe.FormatFor(path); ferr == nil {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", in, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

// loadRegistry merges a snapshot over the bootstrap. No snapshot means
// the shared bootstrap registry.
func loadRegistry(path string) (typeinfo.Provider, error) {
	if path == "" {
		return nil, nil
	}
	extra, err := typeinfo.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("registry snapshot %s does not exist", path)
		}
		return nil, err
	}
	reg := typeinfo.Bootstrap()
	reg.Merge(extra)
	return reg, nil
}

// cacheSalt ties cache keys to the tool version and the snapshot bytes.
func cacheSalt(snapshot string) (string, error) {
	salt := "classbuilder " + version.Version
	if snapshot == "" {
		return salt, nil
	}
	data, err := os.ReadFile(snapshot)
	if err != nil {
		return "", err
	}
	return salt + " registry " + buildcache.Key(data).String(), nil
}

func printOutputs(out io.Writer, outputs []buildpipeline.Output, dryRun bool) {
	if len(outputs) == 0 {
		return
	}
	rows := make([][]string, 0, len(outputs)+1)
	rows = append(rows, []string{"CLASS", "RECIPE", "BYTES"})
	for _, o := range outputs {
		rows = append(rows, []string{o.Class, o.Recipe, fmt.Sprint(o.Size)})
	}
	printTable(out, rows)
	if dryRun {
		fmt.Fprintln(out, "dry run: nothing written")
	}
}

// printTable aligns columns by display width.
func printTable(out io.Writer, rows [][]string) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			b.WriteString("  ")
		}
		fmt.Fprintln(out, strings.TrimRight(b.String(), " "))
	}
}

func printStageTimings(out io.Writer, timings *buildpipeline.Timings) {
	for _, stage := range buildpipeline.Stages {
		if timings.Has(stage) {
			fmt.Fprintf(out, "%s %.1f ms\n", stage, toMillis(timings.Duration(stage)))
		}
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
