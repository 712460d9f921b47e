package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/taskwell/taskwell/internal/admission"
	"github.com/taskwell/taskwell/internal/autoscaler"
	"github.com/taskwell/taskwell/internal/balancer"
	"github.com/taskwell/taskwell/internal/config"
	"github.com/taskwell/taskwell/internal/dispatch"
	"github.com/taskwell/taskwell/internal/events"
	"github.com/taskwell/taskwell/internal/journal"
	"github.com/taskwell/taskwell/internal/scheduler"
	"github.com/taskwell/taskwell/internal/task"
	"github.com/taskwell/taskwell/internal/tui"
	"github.com/taskwell/taskwell/internal/worker"
)

// runtime bundles the wired subsystems: stores, scheduler, dispatcher,
// autoscaler, journal recorder, and the shared event bus.
type runtime struct {
	cfg        *config.Config
	bus        *events.Bus
	sched      *scheduler.Scheduler
	dispatcher *dispatch.Dispatcher
	scaler     *autoscaler.Scaler
	journal    *journal.Journal
	recorder   *journal.Recorder
}

// newRuntime builds the full system from configuration.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	strategy, err := balancer.New(cfg.BalancerStrategy)
	if err != nil {
		return nil, fmt.Errorf("building balancer: %w", err)
	}

	bus := events.NewBus()
	registry := worker.NewRegistry(cfg.HeartbeatTimeout())
	registry.ConfigureWeights(cfg.WorkerWeights)
	sched := scheduler.New(task.NewStore(cfg.MaxRetries), registry, bus)

	dispatcher := dispatch.New(dispatch.Config{
		Strategy:    strategy,
		Admission:   admission.Controller{MinBatchSize: cfg.MinBatchSize, MaxBatchSize: cfg.MaxBatchSize},
		Interval:    cfg.DispatchInterval(),
		Concurrency: cfg.DispatchConcurrency,
	}, sched)

	scaler := autoscaler.New(autoscaler.Config{
		MinAgents:                 cfg.MinAgents,
		MaxAgents:                 cfg.MaxAgents,
		TasksPerAgentThreshold:    cfg.TasksPerAgentThreshold,
		IdleAgentPercentThreshold: cfg.IdleAgentPercentThreshold,
		CooldownPeriod:            cfg.CooldownPeriod(),
	})

	j, err := journal.Open(ctx, cfg.JournalPath)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	return &runtime{
		cfg:        cfg,
		bus:        bus,
		sched:      sched,
		dispatcher: dispatcher,
		scaler:     scaler,
		journal:    j,
		recorder:   journal.NewRecorder(j, sched, bus),
	}, nil
}

// run drives the background loops until ctx is cancelled.
func (r *runtime) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.recorder.Run(ctx) })
	g.Go(func() error { return r.sched.RunSweeper(ctx, r.cfg.SweepInterval()) })
	g.Go(func() error { return r.dispatcher.Run(ctx) })
	g.Go(func() error {
		return r.scaler.Run(ctx, r.cfg.ScaleInterval(), r.snapshot, r.emitScale)
	})

	return g.Wait()
}

func (r *runtime) snapshot() autoscaler.Snapshot {
	s := r.sched.SystemStatus()
	return autoscaler.Snapshot{Pending: s.Pending, InProgress: s.InProgress, Workers: s.TotalWorkers}
}

func (r *runtime) emitScale(d autoscaler.Decision, snap autoscaler.Snapshot) {
	r.bus.Publish(events.TopicScale, events.ScaleDecisionEvent{
		Decision:   d.String(),
		Pending:    snap.Pending,
		InProgress: snap.InProgress,
		Workers:    snap.Workers,
		Timestamp:  time.Now().UTC(),
	})
}

func (r *runtime) close() {
	r.bus.Close()
	if err := r.journal.Close(); err != nil {
		log.Printf("closing journal: %v", err)
	}
}

func main() {
	headless := flag.Bool("headless", false, "run without the dashboard")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	errChan := make(chan error, 1)
	go func() {
		errChan <- rt.run(ctx)
	}()

	if *headless {
		log.Println("taskwell running headless")
		if err := <-errChan; err != nil && err != context.Canceled {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log.Println("Shutdown complete")
		return
	}

	p := tea.NewProgram(tui.New(rt.sched, rt.bus), tea.WithAltScreen())

	tuiChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		tuiChan <- err
	}()

	select {
	case err := <-tuiChan:
		// Normal TUI exit, stop the background loops too.
		stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		stop()
		log.Println("Shutdown signal received, cleaning up...")
		p.Quit()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		select {
		case err := <-tuiChan:
			if err != nil {
				log.Printf("TUI exit error: %v", err)
			}
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}
	}

	log.Println("Shutdown complete")
}
