package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iqrf/iqmesh-gateway/internal/config"
	"github.com/iqrf/iqmesh-gateway/internal/dpa"
	"github.com/iqrf/iqmesh-gateway/internal/dpa/transport"
	"github.com/iqrf/iqmesh-gateway/internal/lease"
	"github.com/iqrf/iqmesh-gateway/internal/logging"
	"github.com/iqrf/iqmesh-gateway/internal/scheduler"
	"github.com/iqrf/iqmesh-gateway/internal/splitter"
	"github.com/iqrf/iqmesh-gateway/internal/splitter/ws"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:   "iqmeshd",
	Short: "IQMESH gateway daemon: autonetwork orchestrator and task scheduler",
	Run: func(rawCmd *cobra.Command, args []string) {
		if err := run(cmd); err != nil {
			if errors.Is(err, Interrupted{}) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg, err := config.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	client, err := transport.Dial(cfg.DPA.Endpoint, cfg.DPA.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to dial DPA transport at %s: %w", cfg.DPA.Endpoint, err)
	}
	defer client.Close()

	l := lease.New()

	sched, err := scheduler.New(scheduler.NewStore(cfg.Scheduler.PersistDir), scheduler.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	bus := splitter.New(nil)
	wsServer := ws.NewServer(cfg.Splitter.Endpoint, bus, log)
	bus.SetSink(wsServer.Sink)

	retryingClient := dpa.WithRetry(client, cfg.DPA.DefaultRetries, log)

	splitter.RegisterSchedulerHandlers(bus, sched)
	splitter.RegisterAutonetworkHandler(bus, retryingClient, l, cfg.Autonetwork.Params(), log)

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return sched.Run(ctx)
	})
	wg.Go(func() error {
		log.Infow("starting splitter bus listener", "addr", cfg.Splitter.Endpoint)
		return wsServer.Run(ctx)
	})
	wg.Go(func() error {
		err := WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}

type Interrupted struct {
	os.Signal
}

func (m Interrupted) Error() string {
	return m.String()
}

// WaitInterrupted blocks until either SIGINT or SIGTERM signal is received or
// the provided context is canceled.
func WaitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case v := <-ch:
		return Interrupted{Signal: v}
	case <-ctx.Done():
		return ctx.Err()
	}
}
