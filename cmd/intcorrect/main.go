package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"

	"intcorrect/internal/config"
	"intcorrect/internal/ctu"
	"intcorrect/internal/report"
	"intcorrect/internal/rewrite"
)

var (
	rootCmd = &cobra.Command{
		Use:   "intcorrect [files...]",
		Short: "Repair integer type inconsistencies in C/C++ sources",
		Long: `intcorrect analyzes C/C++ translation units, infers the integer types
declarations actually need (size_t loop counters, ptrdiff_t pointer
offsets, widened accumulators), and rewrites the sources accordingly.
Cross-file symbols converge through a map/reduce fact store.`,
		Run: run,
	}

	cfgPath        string
	projectRoot    string
	excludePattern string
	phaseName      string
	factsDir       string
	reportFile     string
	includeDirs    []string
	inPlace        bool
	abiChanges     bool
	forceRewrite   bool
	useDecltype    bool
	expandAuto     bool
	audit          bool
	maxIterations  int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfgPath, "config", "", "Path to intcorrect.yaml (default: ./intcorrect.yaml if present)")
	f.StringVar(&projectRoot, "project-root", "", "Root of the project; files outside it are never rewritten")
	f.StringVar(&excludePattern, "exclude", "", "Regex of file paths to leave untouched")
	f.StringVar(&phaseName, "phase", "standalone", "Analysis phase: standalone, map, reduce, apply, iterative")
	f.StringVar(&factsDir, "facts-dir", "", "Directory for cross-TU fact files")
	f.StringVar(&reportFile, "report-file", "", "Append NDJSON change records to this file")
	f.StringArrayVarP(&includeDirs, "include-dir", "I", nil, "Additional include search directories")
	f.BoolVarP(&inPlace, "in-place", "i", false, "Write rewritten files back to disk")
	f.BoolVar(&abiChanges, "enable-abi-breaking-changes", false, "Allow struct field retyping")
	f.BoolVar(&forceRewrite, "force-rewrite", false, "Bypass boundary analysis for parsed files")
	f.BoolVar(&useDecltype, "use-decltype", false, "Spell container widths as decltype(expr)::size_type in C++")
	f.BoolVar(&expandAuto, "expand-auto", false, "Spell out deduced types of call-initialized auto declarations")
	f.BoolVar(&audit, "audit", false, "Emit the NDJSON audit stream even without --report-file")
	f.IntVar(&maxIterations, "max-iterations", 0, "Cap on map/reduce rounds in the iterative phase")
}

func run(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlagOverrides(cmd, cfg)

	exclude, err := compileExclude(cfg.Project.Exclude)
	if err != nil {
		log.Fatalf("Invalid --exclude pattern: %v", err)
	}

	units, err := resolveTargets(args, cfg.Project.Root)
	if err != nil {
		log.Fatalf("Failed to resolve targets: %v", err)
	}
	if len(units) == 0 {
		log.Fatalf("No translation units to analyze")
	}

	// Audit mode reports without touching anything: no in-place writes, no
	// report file, and no source dump competing with the table on stdout.
	if cfg.Report.Audit {
		cfg.Rewrite.InPlace = false
	}
	var sourceOut io.Writer
	if !cfg.Report.Audit && !cfg.Rewrite.InPlace {
		sourceOut = os.Stdout
	}

	runner := ctu.NewRunner(ctu.RunnerOptions{
		Session: ctu.SessionOptions{
			ProjectRoot:     cfg.Project.Root,
			IncludeDirs:     cfg.Project.IncludeDirs,
			Exclude:         exclude,
			AllowABIChanges: cfg.Rewrite.EnableABIBreakingChanges,
			ForceRewrite:    cfg.Rewrite.ForceRewrite,
			UseDecltype:     cfg.Rewrite.UseDecltype,
			ExpandAuto:      cfg.Rewrite.ExpandAuto,
		},
		FactsDir:      cfg.CTU.FactsDir,
		MaxIterations: cfg.CTU.MaxIterations,
		InPlace:       cfg.Rewrite.InPlace,
		Out:           sourceOut,
	})

	ctx := context.Background()
	switch phaseName {
	case "standalone":
		fmt.Fprintf(os.Stderr, "🔍 Analyzing %d translation unit(s)\n", len(units))
		records, err := runner.Standalone(ctx, units)
		emit(cfg, records, err)
	case "map":
		fmt.Fprintf(os.Stderr, "🗺️  Mapping %d translation unit(s) into %s\n", len(units), cfg.CTU.FactsDir)
		if err := runner.Map(ctx, units); err != nil {
			log.Fatalf("Map phase failed: %v", err)
		}
	case "reduce":
		changed, err := runner.Reduce()
		if err != nil {
			log.Fatalf("Reduce phase failed: %v", err)
		}
		if changed {
			fmt.Fprintln(os.Stderr, "♻️  Global facts changed; another round is needed")
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "✅ Global facts converged")
	case "apply":
		fmt.Fprintf(os.Stderr, "✏️  Applying global facts to %d translation unit(s)\n", len(units))
		records, err := runner.Apply(ctx, units)
		emit(cfg, records, err)
	case "iterative":
		fmt.Fprintf(os.Stderr, "🔁 Iterating to convergence over %d translation unit(s)\n", len(units))
		records, err := runner.Iterative(ctx, units)
		emit(cfg, records, err)
	default:
		log.Fatalf("Unknown phase %q", phaseName)
	}
}

// applyFlagOverrides layers explicitly set flags on top of the config file.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("project-root") {
		cfg.Project.Root = projectRoot
	}
	if cmd.Flags().Changed("exclude") {
		cfg.Project.Exclude = excludePattern
	}
	if cmd.Flags().Changed("include-dir") {
		cfg.Project.IncludeDirs = includeDirs
	}
	if cmd.Flags().Changed("in-place") {
		cfg.Rewrite.InPlace = inPlace
	}
	if cmd.Flags().Changed("enable-abi-breaking-changes") {
		cfg.Rewrite.EnableABIBreakingChanges = abiChanges
	}
	if cmd.Flags().Changed("force-rewrite") {
		cfg.Rewrite.ForceRewrite = forceRewrite
	}
	if cmd.Flags().Changed("use-decltype") {
		cfg.Rewrite.UseDecltype = useDecltype
	}
	if cmd.Flags().Changed("expand-auto") {
		cfg.Rewrite.ExpandAuto = expandAuto
	}
	if cmd.Flags().Changed("facts-dir") {
		cfg.CTU.FactsDir = factsDir
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.CTU.MaxIterations = maxIterations
	}
	if cmd.Flags().Changed("report-file") {
		cfg.Report.File = reportFile
	}
	if cmd.Flags().Changed("audit") {
		cfg.Report.Audit = audit
	}
}

func compileExclude(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// resolveTargets accepts explicit files or discovers units under the
// project root.
func resolveTargets(args []string, root string) ([]string, error) {
	if len(args) > 0 {
		out := make([]string, 0, len(args))
		for _, a := range args {
			abs, err := filepath.Abs(a)
			if err != nil {
				return nil, err
			}
			out = append(out, abs)
		}
		return out, nil
	}
	if root == "" {
		root = "."
	}
	return ctu.DiscoverUnits(root)
}

// emit routes change records. Audit mode prints the table to stdout and
// writes nothing; otherwise an NDJSON stream is appended when asked for.
func emit(cfg *config.Config, records []rewrite.ChangeRecord, err error) {
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	mgr := report.NewManager()
	if cfg.Report.Audit {
		mgr.Add(&report.Markdown{Out: os.Stdout})
	} else if cfg.Report.File != "" {
		mgr.Add(&report.NDJSON{Path: cfg.Report.File})
	}
	mgr.Emit(records)
	fmt.Fprintf(os.Stderr, "✨ %d declaration(s) retyped\n", len(records))
}
