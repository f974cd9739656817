package main

import (
	"fmt"
	"sort"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	"github.com/downfa11-org/partq/pkg/cursor"
	"github.com/downfa11-org/partq/pkg/part"
	"github.com/downfa11-org/partq/pkg/queue"
	"github.com/downfa11-org/partq/pkg/record"
)

var statCmd = &cobra.Command{
	Use:     "stat <queue>",
	Short:   "Show parts, sizes and consumer cursors of a queue",
	Example: "  partq stat orders",
	Args:    cobra.ExactArgs(1),
	RunE:    executeStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func executeStat(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	q, err := queue.Open(cfg, args[0], record.ModeRead)
	if err != nil {
		return err
	}
	defer q.Close()

	parts, err := part.Discover(q.Dir())
	if err != nil {
		return err
	}
	info, err := queue.ReadInfo(q.Dir())
	if err != nil {
		return err
	}

	fmt.Printf("queue %s (%s)\n", q.Name(), q.Dir())
	if info != nil {
		fmt.Printf("  writer session %s, active part %d\n", info.Session, info.Part)
	}

	var totalBytes, totalRecords uint64
	fmt.Println("  parts:")
	for _, p := range parts {
		meta, err := part.ReadMeta(p.MetaPath)
		if err != nil {
			return err
		}

		var records uint64
		state := "active"
		if meta != nil && meta.Sealed {
			records = meta.Records
			state = "sealed"
		} else if r, err := part.OpenReader(q.Dir(), p.Number, false); err == nil {
			records, _ = r.CountFrom(0)
			_ = r.Close()
		}

		totalBytes += uint64(p.Size)
		totalRecords += records
		fmt.Printf("    part %d: %s, %d record(s), %s\n", p.Number, bytefmt.ByteSize(uint64(p.Size)), records, state)
	}
	fmt.Printf("  total: %d part(s), %d record(s), %s\n", len(parts), totalRecords, bytefmt.ByteSize(totalBytes))

	cursors, err := cursor.NewStore(q.Dir()).All()
	if err != nil {
		return err
	}
	if len(cursors) == 0 {
		fmt.Println("  consumers: none")
		return nil
	}

	names := make([]string, 0, len(cursors))
	for name := range cursors {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("  consumers:")
	for _, name := range names {
		cur := cursors[name]
		fmt.Printf("    %s: part %d offset %d, %d popped\n", name, cur.Part, cur.Offset, cur.Popped)
	}
	return nil
}
