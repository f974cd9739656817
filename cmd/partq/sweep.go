package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/downfa11-org/partq/pkg/queue"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <queue>",
	Short: "Apply the retention policy to fully consumed parts",
	Long: "Removes or archives sealed parts that every consumer has committed\n" +
		"past. The newest part and queues without consumers are never touched.",
	Example: "  partq sweep orders --policy archive",
	Args:    cobra.ExactArgs(1),
	RunE:    executeSweep,
}

var sweepPolicy string

func init() {
	sweepCmd.Flags().StringVar(&sweepPolicy, "policy", "", "override the configured cleanup policy: delete or archive")
	rootCmd.AddCommand(sweepCmd)
}

func executeSweep(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sweepPolicy != "" {
		cfg.CleanupPolicy = sweepPolicy
		cfg.Normalize()
	}

	res, err := queue.Sweep(cfg, args[0])
	if err != nil {
		return err
	}
	if len(res.Swept) == 0 {
		fmt.Printf("nothing to sweep (policy %s)\n", res.Policy)
		return nil
	}
	fmt.Printf("swept part(s) %v (policy %s)\n", res.Swept, res.Policy)
	return nil
}
