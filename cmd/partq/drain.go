package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/downfa11-org/partq/pkg/config"
	"github.com/downfa11-org/partq/pkg/consumer"
	"github.com/downfa11-org/partq/pkg/record"
)

var drainCmd = &cobra.Command{
	Use:   "drain <queue>",
	Short: "Read and commit records as a named consumer",
	Long: "Pops records from the consumer's committed cursor, prints each body\n" +
		"to stdout and commits it. Every consumer name sees every record;\n" +
		"draining under one name leaves all other cursors untouched.",
	Example: "  partq drain orders --consumer billing\n  partq drain orders --peek",
	Args:    cobra.ExactArgs(1),
	RunE:    executeDrain,
}

var (
	drainConsumer string
	drainLimit    int
	drainPeek     bool
	drainOldest   bool
)

func init() {
	drainCmd.Flags().StringVarP(&drainConsumer, "consumer", "C", "cli", "consumer name owning the cursor")
	drainCmd.Flags().IntVarP(&drainLimit, "limit", "n", 0, "stop after this many records (0 = drain everything)")
	drainCmd.Flags().BoolVar(&drainPeek, "peek", false, "print the next record without committing it")
	drainCmd.Flags().BoolVar(&drainOldest, "oldest", false, "start a new consumer name at the oldest part instead of the current one")
	rootCmd.AddCommand(drainCmd)
}

func executeDrain(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if drainOldest {
		cfg.StartFrom = config.StartFromOldest
	}

	c, err := consumer.Open(cfg, args[0], drainConsumer, record.ModeRead)
	if err != nil {
		return err
	}
	defer c.Close()

	out := bufio.NewWriter(os.Stdout)

	var n int
	for (drainLimit == 0 || n < drainLimit) && c.PopHeader() {
		if _, err := out.Write(c.PopBody()); err != nil {
			return err
		}
		if err := out.WriteByte('\n'); err != nil {
			return err
		}
		if drainPeek {
			break
		}
		if !c.Commit() {
			break
		}
		n++
	}
	if err := out.Flush(); err != nil {
		return err
	}
	if err := c.Err(); err != nil {
		return err
	}
	if drainPeek {
		return nil
	}

	left, err := c.BatchSize()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "drained %d record(s) from %s as %q; %d left\n", n, args[0], drainConsumer, left)
	return nil
}
