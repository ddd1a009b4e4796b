package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/copyleftdev/blackbox/internal/logging"
	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/objectives"
	"github.com/copyleftdev/blackbox/internal/runner"
)

type runOptions struct {
	algorithm  string
	objective  string
	dim        int
	iterations int
	seed       uint64
	kernel     string
	asJSON     bool
	plot       bool
	logScale   bool
	height     int
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "blackbox",
		Short:         "black-box optimisation toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newRunCmd(), newListCmd(), newVersionCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	runCmd := &cobra.Command{
		Use:   "run [request.yaml]",
		Short: "run one optimisation and print its summary",
		Long: "Run an optimisation described by a YAML or JSON request file. " +
			"Flags override the matching fields of the file; with no file, flags describe the whole request.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req runner.Request
			if len(args) == 1 {
				var err error
				if req, err = runner.LoadRequest(args[0]); err != nil {
					return err
				}
			}
			flags := cmd.Flags()
			if flags.Changed("algorithm") || req.Algorithm == "" {
				req.Algorithm = optimization.Algorithm(opts.algorithm)
			}
			if flags.Changed("objective") || req.Objective == "" {
				req.Objective = opts.objective
			}
			if flags.Changed("dim") {
				req.Dim = opts.dim
			}
			if flags.Changed("iterations") {
				req.Iterations = opts.iterations
			}
			if flags.Changed("seed") {
				req.Seed = opts.seed
			}
			if flags.Changed("kernel") {
				req.Kernel = opts.kernel
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runRequest(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), req, opts)
		},
	}

	f := runCmd.Flags()
	f.StringVar(&opts.algorithm, "algorithm", string(optimization.SimulatedAnneal), "grid, hill, random, anneal, genetic, gradient or bayes")
	f.StringVar(&opts.objective, "objective", "rastrigin", "objective name, see `blackbox list`")
	f.IntVar(&opts.dim, "dim", 0, "dimensionality of variable-size objectives")
	f.IntVar(&opts.iterations, "iterations", 0, "iterations (generations for genetic)")
	f.Uint64Var(&opts.seed, "seed", 0, "random seed, 0 for time-seeded")
	f.StringVar(&opts.kernel, "kernel", "", "surrogate kernel for bayes, rbf or matern52")
	f.BoolVar(&opts.asJSON, "json", false, "print the summary as JSON")
	f.BoolVar(&opts.plot, "plot", true, "plot the best-loss trace")
	f.BoolVar(&opts.logScale, "log-scale", false, "plot log10 of the loss")
	f.IntVar(&opts.height, "height", 12, "plot height in rows")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format, json or text")
	return runCmd
}

func runRequest(ctx context.Context, out, errOut io.Writer, req runner.Request, opts runOptions) error {
	logger := logging.NewWithFormat(logging.ParseLevel(opts.logLevel), logging.Format(opts.logFormat), errOut)

	r := runner.New(runner.WithLogger(logging.NewZapLogger(logger.WithField("cmd", "run"))))
	summary, err := r.Run(ctx, req, nil)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(out, summary)
	if opts.plot {
		if graph := plotTrace(summary.Result.LossTrace, opts.height, opts.logScale); graph != "" {
			fmt.Fprintln(out)
			fmt.Fprintln(out, graph)
		}
	}
	return nil
}

func printSummary(out io.Writer, s *runner.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "algorithm\t%s\n", s.Algorithm)
	fmt.Fprintf(w, "objective\t%s\n", s.Objective)
	fmt.Fprintf(w, "theta\t%s\n", formatVector(s.Theta))
	fmt.Fprintf(w, "loss\t%.6g\n", float64(s.Loss))
	if s.Minimum != nil {
		fmt.Fprintf(w, "known minimum\t%s\n", formatVector(s.Minimum))
	}
	fmt.Fprintf(w, "evaluations\t%d\n", s.Evaluations)
	fmt.Fprintf(w, "checkpoints\t%d\n", len(s.Checkpoints))
	fmt.Fprintf(w, "duration\t%s\n", s.Duration)
	_ = w.Flush()
}

func formatVector(x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = fmt.Sprintf("%.5g", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// plotTrace renders the finite part of a best-loss trace. Leading entries
// are +Inf until the first finite loss.
func plotTrace(trace []float64, height int, logScale bool) string {
	data := make([]float64, 0, len(trace))
	for _, v := range trace {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		if logScale {
			v = math.Log10(math.Max(v, 1e-300))
		}
		data = append(data, v)
	}
	if len(data) == 0 {
		return ""
	}
	caption := "best loss"
	if logScale {
		caption = "log10 best loss"
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list algorithms and objectives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listCatalog(cmd.OutOrStdout())
		},
	}
}

func listCatalog(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALGORITHM")
	for _, a := range optimization.Algorithms() {
		fmt.Fprintln(w, string(a))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OBJECTIVE\tDIM\tGRADIENT\tDESCRIPTION")
	for _, name := range objectives.Names() {
		obj, err := objectives.Lookup(name, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", name, len(obj.Bounds), obj.Gradient != nil, obj.Description)
	}
	return w.Flush()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "blackbox", version)
		},
	}
}
