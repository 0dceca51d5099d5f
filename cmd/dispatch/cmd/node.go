package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/retention"
	"github.com/cschleiden/go-dispatch/scheduler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a scheduler node",
	Long: `node fires due scheduled jobs until interrupted. Any number of nodes may run against the
same backend, each job is fired by exactly one of them. With retention enabled the node also
removes finished instances older than the retention period.`,
	Args: cobra.NoArgs,
	RunE: runNode,
}

func init() {
	nodeCmd.Flags().String("node-id", "", "scheduler node id (default: random)")
	nodeCmd.Flags().Int("pollers", 1, "number of concurrent pollers")
	nodeCmd.Flags().Bool("retention", true, "remove finished instances after the retention period")

	rootCmd.AddCommand(nodeCmd)
}

func runNode(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(cmd, map[string]string{
		"scheduler.node_id": "node-id",
		"scheduler.pollers": "pollers",
		"retention.enabled": "retention",
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sc := a.cfg.Scheduler
	opts := []scheduler.Option{
		scheduler.WithPollers(sc.Pollers),
		scheduler.WithMaxParallelJobs(sc.MaxParallelJobs),
		scheduler.WithPollingInterval(sc.PollingInterval),
		scheduler.WithClaimTimeout(sc.ClaimTimeout),
		scheduler.WithHeartbeatInterval(sc.HeartbeatInterval),
		scheduler.WithRetryDelay(sc.RetryDelay),
	}
	if sc.NodeID != "" {
		opts = append(opts, scheduler.WithNodeID(sc.NodeID))
	}

	s := scheduler.New(a.backend, a.dispatcher, opts...)
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	a.logger.Info("scheduler node started", log.NodeKey, s.NodeID(), "backend", a.cfg.Backend.Type)

	var sweeper *retention.Sweeper
	if rc := a.cfg.Retention; rc.Enabled {
		sweeper = retention.NewSweeper(a.backend,
			retention.WithRetention(rc.Retention),
			retention.WithInterval(rc.Interval),
			retention.WithBatchSize(rc.BatchSize),
		)
		sweeper.Start(ctx)
	}

	<-ctx.Done()

	a.logger.Info("stopping scheduler node", log.NodeKey, s.NodeID())

	if sweeper != nil {
		sweeper.WaitForCompletion()
	}

	return s.WaitForCompletion()
}

// bindFlags binds command local flags to config keys.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}

	return nil
}
