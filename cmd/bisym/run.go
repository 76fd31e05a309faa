package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"math/rand"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/gosymex/bisym"
	"github.com/gosymex/bisym/config"
	"github.com/gosymex/bisym/lemma"
	"github.com/gosymex/bisym/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var SymbolicTestPrefix = "SymbolicTest"

// RunCommand wires a loaded program, its config, and a writer together and
// drives the bisym.Engine to completion for every SymbolicTest entry point.
// It does not itself implement instruction interpretation or SMT solving —
// those remain the external collaborators spec.md deliberately leaves
// unspecified; haltExecutor below is a placeholder a real deployment
// replaces with a concrete StepExecutor.
type RunCommand struct{}

func NewRunCommand() *RunCommand { return &RunCommand{} }

func (cmd *RunCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bisym-run", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "verbose")
	configPath := fs.String("config", "", "path to a YAML config file (defaults applied if empty)")
	lemmaDir := fs.String("lemma-dir", "", "directory for the embedded lemma store (disabled if empty)")
	maxSteps := fs.Int("max-steps", 10000, "scheduler step budget per entry point")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("package required")
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many packages specified")
	}

	log.SetFlags(0)
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}

	opts := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		opts = loaded
	}

	var store *lemma.Store
	if *lemmaDir != "" {
		var err error
		store, err = lemma.OpenStore(*lemmaDir)
		if err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	observer := metrics.New(reg)

	initial, err := packages.Load(&packages.Config{
		Mode:  packages.LoadAllSyntax,
		Tests: true,
	}, fs.Args()...)
	if err != nil {
		return err
	} else if packages.PrintErrors(initial) > 0 {
		return fmt.Errorf("packages contain errors")
	}

	prog, pkgs := ssautil.AllPackages(initial, ssa.BuilderMode(0))
	for i, pkg := range pkgs {
		if pkg == nil {
			return fmt.Errorf("cannot build SSA for package %s", initial[i])
		}
		pkg.SetDebugMode(true)
	}
	prog.Build()

	var fns []*ssa.Function
	for _, pkg := range pkgs {
		for _, m := range pkg.Members {
			if m, ok := m.(*ssa.Function); ok && strings.HasPrefix(m.Name(), SymbolicTestPrefix) {
				fns = append(fns, m)
			}
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name() < fns[j].Name() })

	module := bisym.NewModule(prog)
	var runErr error
	for _, fn := range fns {
		if err := cmd.explore(module, fn, opts, observer, store, *maxSteps); err != nil {
			runErr = err
			break
		}
	}

	if err := cmd.shutdown(ctx, store, reg); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown drains the two independent outstanding I/O tasks concurrently
// (flushing the lemma store, writing the final metrics summary) and joins
// before returning, per SPEC_FULL.md §5.
func (cmd *RunCommand) shutdown(ctx context.Context, store *lemma.Store, reg *prometheus.Registry) error {
	var g errgroup.Group

	if store != nil {
		g.Go(store.Close)
	}
	g.Go(func() error {
		return writeMetricsSummary(log.Writer(), reg)
	})

	return g.Wait()
}

// writeMetricsSummary renders every gathered metric family as a single
// "name value" line, a minimal stand-in for a push-gateway export.
func writeMetricsSummary(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.Metric {
			var v float64
			switch {
			case m.Counter != nil:
				v = m.Counter.GetValue()
			case m.Gauge != nil:
				v = m.Gauge.GetValue()
			default:
				continue
			}
			if _, err := fmt.Fprintf(w, "%s%s %g\n", mf.GetName(), labelSuffix(m.Label), v); err != nil {
				return err
			}
		}
	}
	return nil
}

func labelSuffix(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, l := range labels {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", l.GetName(), l.GetValue())
	}
	b.WriteByte('}')
	return b.String()
}

func (cmd *RunCommand) explore(module *bisym.Module, fn *ssa.Function, opts config.Options, observer *metrics.Metrics, store *lemma.Store, maxSteps int) error {
	log.Printf("[begin %s]", fn.Name())

	kFn := module.Function(fn)
	root := bisym.NewExecutionState(1, kFn)

	ctx := bisym.NewContext()
	dc := bisym.NewDistanceCalculator(module)
	dm := bisym.NewDistanceManager(dc)

	hub := bisym.NewHub(func(state *bisym.ExecutionState, target bisym.Target) bool {
		return bisym.IsReachedTarget(state, target, state.Isolated())
	})

	branch := bisym.NewWeightedRandomSearcher(bisym.WeightRP, nil, rand.NewSource(1))
	backward := bisym.NewRecencyRankedSearcher(opts.MaxPropagations)
	initializer := bisym.NewConflictCoreInitializer(module, dc, func(b *bisym.Block) bool {
		return b.Kind == bisym.BlockReturn
	})
	targets := bisym.NewTargetManager(ctx, dm, targetCalculator(kFn, opts.TargetCalculatorKind), false)

	bisym.SubscribeBackwardSearcher(hub, backward)
	bisym.SubscribeInitializer(hub, initializer)
	bisym.SubscribeTargetManager(hub, targets)

	quotas := opts.Ticker
	if len(quotas) != 4 {
		quotas = []int{0, 30, 30, 30}
	}
	scheduler := bisym.NewBidirectionalScheduler(quotas, nil, branch, backward, initializer)

	exec := &haltExecutor{}
	engine := bisym.NewEngine(hub, scheduler, exec, observer, targets, maxSteps)

	branch.Update(bisym.StateEvent{Added: []*bisym.ExecutionState{root}})
	hub.BranchState(root)
	hub.UpdateSubscribers()

	if err := engine.Run(); err != nil {
		return fmt.Errorf("explore %s: %w", fn.Name(), err)
	}

	if store != nil {
		if err := store.Add(lemma.Lemma{Path: fn.Name()}); err != nil {
			return err
		}
	}

	log.Print("[end]")
	return nil
}

// targetCalculator returns the candidate-target elector a stuck state pulls
// fresh targets from, per opts.TargetCalculatorKind: "blocks" targets every
// block in fn (broadest coverage goal), while "default"/"transitions"
// target only fn's return blocks (reach-the-exit goal).
func targetCalculator(fn *bisym.Function, kind config.TargetCalculatorKind) func() []bisym.Target {
	return func() []bisym.Target {
		blocks := fn.Returns
		if kind == config.TargetCalculatorBlocks {
			blocks = fn.Blocks
		}
		targets := make([]bisym.Target, 0, len(blocks))
		for _, b := range blocks {
			targets = append(targets, bisym.NewReachBlock(b, true))
		}
		return targets
	}
}

// haltExecutor terminates every state it is handed without exploring
// further. It stands in for the real concrete instruction-interpretation
// collaborator, which spec.md places out of scope.
type haltExecutor struct{}

func (haltExecutor) ExecuteForward(state *bisym.ExecutionState) (bisym.StateEvent, bisym.PobEvent, error) {
	return bisym.StateEvent{Removed: []*bisym.ExecutionState{state}}, bisym.PobEvent{}, nil
}

func (haltExecutor) ExecuteIsolated(inst bisym.KInstruction, targets *bisym.TargetSet) (bisym.StateEvent, error) {
	return bisym.StateEvent{}, nil
}

func (haltExecutor) ExecuteBackward(prop *bisym.Propagation) (bisym.PobEvent, bisym.ConflictEvent, error) {
	return bisym.PobEvent{}, bisym.ConflictEvent{}, nil
}

func (cmd *RunCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: bisym run [arguments] [package]

Arguments:

	-v
	    Enable verbose logging.
	-config path
	    YAML config file (defaults applied if omitted).
	-lemma-dir dir
	    Directory for the embedded lemma store.
	-max-steps n
	    Scheduler step budget per entry point (default 10000).
`[1:])
}
