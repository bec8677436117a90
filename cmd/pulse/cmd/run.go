package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-drift/pulse/cmd/pulse/internal/demo"
	"github.com/go-drift/pulse/pkg/engine"
	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/logging"
	"github.com/go-drift/pulse/pkg/timer"
)

func init() {
	RegisterCommand(&Command{
		Name:  "run",
		Short: "Run the demo scene",
		Long: `Run a scripted demo scene on the engine configured by pulse.yaml.

The scene is a window with a button and a label. A periodic input timer
replays resizes (propagated to the children, with coalesced redraws), a
double click, a single click and an asynchronous content load.

By default ticks are simulated: the loop advances a manual tick source as
fast as it can. With --realtime the engine's own loop drives ticks at the
configured tick period.

Flags:
  --ticks N      Stop after N ticks even if the scene is not done (default: 600)
  --realtime     Tick at the configured period instead of simulating
  --quiet        Only print the summary
  --trace        Print the per-tick trace after the summary`,
		Usage: "pulse run [--ticks N] [--realtime] [--quiet] [--trace]",
		Run:   runRun,
	})
}

type runOptions struct {
	ticks    timer.Tick
	realtime bool
	quiet    bool
	trace    bool
}

func parseRunArgs(args []string) (runOptions, error) {
	opts := runOptions{ticks: 600}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--realtime":
			opts.realtime = true
		case arg == "--quiet":
			opts.quiet = true
		case arg == "--trace":
			opts.trace = true
		case arg == "--ticks" || strings.HasPrefix(arg, "--ticks="):
			value, ok := strings.CutPrefix(arg, "--ticks=")
			if !ok {
				if i+1 >= len(args) {
					return opts, fmt.Errorf("--ticks requires a value")
				}
				i++
				value = args[i]
			}
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil || n == 0 {
				return opts, fmt.Errorf("--ticks must be a positive integer (got %q)", value)
			}
			opts.ticks = timer.Tick(n)
		default:
			return opts, fmt.Errorf("unknown flag %q\n\nUsage: pulse run [--ticks N] [--realtime] [--quiet] [--trace]", arg)
		}
	}
	return opts, nil
}

func runRun(env *Env, args []string) error {
	opts, err := parseRunArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(env)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	prevLogger := logging.SetDefault(logger)
	defer logging.SetDefault(prevLogger)
	errors.SetHandler(&errors.LogHandler{Logger: logger})
	defer errors.SetHandler(nil)

	src := timer.NewManualSource(0)
	e, err := engine.New(cfg.Engine, engine.WithSource(src), engine.WithLogger(logger))
	if err != nil {
		return err
	}

	out := env.Out
	if opts.quiet {
		out = nil
	}
	scene, err := demo.New(e, out, demo.DefaultScript())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(env.Out, "Running %s (engine %s, %d workers, tick %s)\n",
		cfg.AppName, cfg.EngineVersion, cfg.Engine.Workers, cfg.Engine.TickPeriod)
	if opts.realtime {
		err = runRealtime(ctx, e, scene, opts.ticks)
	} else {
		err = runSimulated(ctx, e, src, scene, opts.ticks)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := e.Close(closeCtx); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	printSummary(env, e, scene, opts.trace)
	return nil
}

func runSimulated(ctx context.Context, e *engine.Engine, src *timer.ManualSource, scene *demo.Scene, limit timer.Tick) error {
	for src.Now() < limit && !scene.Done() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		src.Advance(1)
		e.Tick()
		if e.Stats().Executor.Submitted > e.Stats().Executor.Completed {
			// Give asynchronous handlers a chance to finish before the
			// next simulated tick.
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}

func runRealtime(ctx context.Context, e *engine.Engine, scene *demo.Scene, limit timer.Tick) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		ticker := time.NewTicker(e.Config().TickPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if scene.Done() || e.Source().Now() >= limit {
					return nil
				}
			}
		}
	})
	return g.Wait()
}

func printSummary(env *Env, e *engine.Engine, scene *demo.Scene, trace bool) {
	st := e.Stats()
	fmt.Fprintln(env.Out)
	fmt.Fprintln(env.Out, "Summary:")
	for _, line := range scene.Summary() {
		fmt.Fprintf(env.Out, "  %s\n", line)
	}
	fmt.Fprintf(env.Out, "  %-14s %d\n", "ticks", st.Ticks)
	fmt.Fprintf(env.Out, "  %-14s %d\n", "timers fired", st.Timers.Fired)
	fmt.Fprintf(env.Out, "  %-14s %d posted, %d delivered, %d dropped\n", "events",
		st.Dispatch.Posted, st.Dispatch.Delivered, st.Dispatch.Dropped)
	fmt.Fprintf(env.Out, "  %-14s %d submitted, %d completed, %d rejected\n", "async",
		st.Executor.Submitted, st.Executor.Completed, st.Executor.Rejected)

	tr := e.Trace()
	if tr == nil {
		return
	}
	sum := tr.Summary()
	fmt.Fprintf(env.Out, "  %-14s avg %s, max %s over %d ticks\n", "tick time",
		sum.AvgDuration, sum.MaxDuration, sum.Samples)
	if !trace {
		return
	}
	fmt.Fprintln(env.Out)
	fmt.Fprintln(env.Out, "Trace:")
	for _, s := range tr.Snapshot() {
		if s.Fired == 0 && s.Dispatched == 0 {
			continue
		}
		fmt.Fprintf(env.Out, "  tick %4d  fired %d  dispatched %d  %s\n", s.Tick, s.Fired, s.Dispatched, s.Duration)
	}
}
