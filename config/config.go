// Package config loads and hot-reloads the engine's option table.
package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// RewriteMode controls how aggressively the constraint-set simplifier
// rewrites equalities.
type RewriteMode string

const (
	RewriteNone   RewriteMode = "none"
	RewriteSimple RewriteMode = "simple"
	RewriteFull   RewriteMode = "full"
)

// TargetCalculatorKind selects which state history drives target election.
type TargetCalculatorKind string

const (
	TargetCalculatorDefault     TargetCalculatorKind = "default"
	TargetCalculatorBlocks      TargetCalculatorKind = "blocks"
	TargetCalculatorTransitions TargetCalculatorKind = "transitions"
)

// Options mirrors the engine's recognized configuration options.
type Options struct {
	MaxCyclesBeforeStuck  int                  `yaml:"max-cycles-before-stuck"`
	MaxPropagations       int                  `yaml:"max-propagations"`
	RewriteEqualities     RewriteMode          `yaml:"rewrite-equalities"`
	TargetCalculatorKind  TargetCalculatorKind `yaml:"target-calculator-kind"`
	UseBatchingSearch     bool                 `yaml:"use-batching-search"`
	BatchInstructions     int                  `yaml:"batch-instructions"`
	BatchTime             int                  `yaml:"batch-time-ms"`
	UseIterativeDeepening bool                 `yaml:"use-iterative-deepening-time-search"`
	Search                []string             `yaml:"search"`
	KSummaryFile          string               `yaml:"ksummary-file"`
	Ticker                []int                `yaml:"ticker"`
}

// Default returns the option table's documented defaults.
func Default() Options {
	return Options{
		MaxCyclesBeforeStuck:  100,
		MaxPropagations:       4,
		RewriteEqualities:     RewriteSimple,
		TargetCalculatorKind:  TargetCalculatorDefault,
		UseBatchingSearch:     false,
		BatchInstructions:     100,
		BatchTime:             1000,
		UseIterativeDeepening: false,
		Search:                []string{"random-path", "weighted-random"},
		KSummaryFile:          "",
		Ticker:                []int{0, 30, 30, 30},
	}
}

// Validate rejects option combinations the engine cannot act on.
func (o Options) Validate() error {
	switch o.RewriteEqualities {
	case RewriteNone, RewriteSimple, RewriteFull:
	default:
		return fmt.Errorf("config: unknown rewrite-equalities %q", o.RewriteEqualities)
	}
	switch o.TargetCalculatorKind {
	case TargetCalculatorDefault, TargetCalculatorBlocks, TargetCalculatorTransitions:
	default:
		return fmt.Errorf("config: unknown target-calculator-kind %q", o.TargetCalculatorKind)
	}
	if len(o.Ticker) != 0 && len(o.Ticker) != 4 {
		return fmt.Errorf("config: ticker must have exactly 4 slots, got %d", len(o.Ticker))
	}
	if o.MaxPropagations < 0 {
		return fmt.Errorf("config: max-propagations must be >= 0")
	}
	return nil
}

// Load reads and validates options from a YAML file at path.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	opts := Default()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Watcher holds a live Options snapshot, reloaded from disk on write events
// so a concurrently-running scheduler loop always reads a consistent value
// without a mutex on the hot path.
type Watcher struct {
	path    string
	current atomic.Pointer[Options]
	watcher *fsnotify.Watcher
	onError func(error)
}

// NewWatcher loads path once and starts watching it for changes. onError,
// if non-nil, is called with reload failures; a failed reload leaves the
// previous snapshot in place.
func NewWatcher(path string, onError func(error)) (*Watcher, error) {
	opts, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{path: path, watcher: fw, onError: onError}
	w.current.Store(&opts)

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			opts, err := Load(w.path)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				continue
			}
			w.current.Store(&opts)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// Current returns the most recently applied options snapshot.
func (w *Watcher) Current() Options { return *w.current.Load() }

// Close stops watching the file.
func (w *Watcher) Close() error { return w.watcher.Close() }
