package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reconciliation pass and exit",
	Long: `Re-evaluates every active role assignment against current holdings
and revokes roles that no longer qualify. Useful for cron-style deployments
that prefer an external scheduler over the built-in loop.`,
	Run: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(_ *cobra.Command, _ []string) {
	ctx := context.Background()

	svc, err := buildServices(ctx)
	if err != nil {
		logrus.Fatalln("Failed to initialize services:", err)
	}
	defer svc.close()

	stats := svc.reconciler.Sweep(ctx)
	logrus.Infof("Sweep finished: checked=%d valid=%d expired=%d failed=%d",
		stats.Checked, stats.Valid, stats.Expired, stats.Failed)
}
