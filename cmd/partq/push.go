package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/downfa11-org/partq/pkg/queue"
	"github.com/downfa11-org/partq/pkg/record"
)

var pushCmd = &cobra.Command{
	Use:   "push <queue> [body ...]",
	Short: "Append records to a queue",
	Long: "Opens the queue as its exclusive writer and appends one record per\n" +
		"body argument, or one per stdin line when no bodies are given.",
	Example: "  partq push orders \"hello\"\n  seq 100 | partq push orders",
	Args:    cobra.MinimumNArgs(1),
	RunE:    executePush,
}

var pushType string

func init() {
	pushCmd.Flags().StringVarP(&pushType, "type", "t", "string", "record type tag: string or object")
	rootCmd.AddCommand(pushCmd)
}

func executePush(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	msgType, err := record.ParseMsgType(pushType)
	if err != nil {
		return err
	}

	q, err := queue.Open(cfg, args[0], record.ModeReadWrite)
	if err != nil {
		return err
	}
	defer q.Close()

	var n int
	if bodies := args[1:]; len(bodies) > 0 {
		for _, body := range bodies {
			if _, err := q.Push(msgType, []byte(body)); err != nil {
				return err
			}
			n++
		}
	} else {
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 0, 64*1024), record.MaxBodyLen)
		for sc.Scan() {
			if _, err := q.Push(msgType, sc.Bytes()); err != nil {
				return err
			}
			n++
		}
		if err := sc.Err(); err != nil {
			return err
		}
	}

	active, _ := q.ActivePart()
	fmt.Printf("pushed %d record(s) to %s (part %d)\n", n, q.Name(), active)
	return nil
}
