package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/downfa11-org/partq/pkg/consumer"
	"github.com/downfa11-org/partq/pkg/queue"
	"github.com/downfa11-org/partq/pkg/record"
)

var benchCmd = &cobra.Command{
	Use:   "bench <queue>",
	Short: "Benchmark push and drain throughput on one queue",
	Long: "Pushes a batch of records through the exclusive writer while the\n" +
		"given number of fan-out consumers drain them concurrently, then\n" +
		"reports end-to-end throughput.",
	Example: "  partq bench loadtest -n 100000 --consumers 4",
	Args:    cobra.ExactArgs(1),
	RunE:    executeBench,
}

var (
	benchCount     int
	benchSize      int
	benchConsumers int
	benchRate      float64
)

func init() {
	benchCmd.Flags().IntVarP(&benchCount, "messages", "n", 10000, "number of records to push")
	benchCmd.Flags().IntVar(&benchSize, "size", 128, "payload size in bytes")
	benchCmd.Flags().IntVar(&benchConsumers, "consumers", 1, "number of concurrent consumers")
	benchCmd.Flags().Float64Var(&benchRate, "rate", 0, "push rate limit in records/sec (0 = unlimited)")
	rootCmd.AddCommand(benchCmd)
}

func executeBench(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	queueName := args[0]
	run := uuid.NewString()[:8]

	// The writer opens first so the consumers pin their cursors to the
	// fresh active part and see exactly this run's records.
	q, err := queue.Open(cfg, queueName, record.ModeReadWrite)
	if err != nil {
		return err
	}
	defer q.Close()

	consumers := make([]*consumer.Consumer, 0, benchConsumers)
	for i := 0; i < benchConsumers; i++ {
		c, err := consumer.Open(cfg, queueName, fmt.Sprintf("bench-%s-%d", run, i), record.ModeRead)
		if err != nil {
			return err
		}
		defer c.Close()
		consumers = append(consumers, c)
	}

	payload := bytes.Repeat([]byte{'x'}, benchSize)
	var limiter *rate.Limiter
	if benchRate > 0 {
		burst := int(benchRate)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(benchRate), burst)
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		for i := 0; i < benchCount; i++ {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			}
			if _, err := q.Push(record.MsgTypeString, payload); err != nil {
				return fmt.Errorf("push %d: %w", i, err)
			}
		}
		return nil
	})

	target := uint64(benchCount)
	for _, c := range consumers {
		c := c
		g.Go(func() error {
			for c.CountPopped() < target {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if !c.PopHeader() {
					if err := c.Err(); err != nil {
						return err
					}
					time.Sleep(time.Millisecond)
					continue
				}
				if !c.Commit() {
					if err := c.Err(); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	duration := time.Since(start)
	throughput := float64(benchCount) / duration.Seconds()
	volume := uint64(benchCount) * uint64(benchSize)

	fmt.Printf("\n🧪 BENCHMARK RESULT [%s] 🧪\n", queueName)
	fmt.Printf("-------------------------------------\n")
	fmt.Printf(" Consumers     : %d\n", benchConsumers)
	fmt.Printf(" Records       : %d\n", benchCount)
	fmt.Printf(" Payload       : %s\n", bytefmt.ByteSize(uint64(benchSize)))
	fmt.Printf(" Volume        : %s\n", bytefmt.ByteSize(volume))
	fmt.Printf(" Duration      : %v\n", duration)
	fmt.Printf(" Throughput    : %.2f msg/sec\n", throughput)
	fmt.Printf("-------------------------------------\n")
	return nil
}
