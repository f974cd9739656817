// Command partq is the operator CLI for partq queues: push records,
// drain them as a named consumer, inspect parts and cursors, run
// retention sweeps and benchmark a queue end to end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/downfa11-org/partq/pkg/config"
	"github.com/downfa11-org/partq/pkg/metrics"
	"github.com/downfa11-org/partq/util"
)

var rootCmd = &cobra.Command{
	Use:   "partq",
	Short: "File-backed fan-out message queue",
	Long: "partq stores queues as append-only part files under a base directory.\n" +
		"One writer per queue appends records; any number of named consumers\n" +
		"read every record independently through durable cursors.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

var (
	flagConfig       string
	flagBase         string
	flagLogLevel     string
	flagExporter     bool
	flagExporterPort int
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "path to a YAML or JSON config file (default $PARTQ_CONFIG)")
	pf.StringVarP(&flagBase, "base", "b", "", "base directory holding the queue directories")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&flagExporter, "exporter", false, "serve Prometheus metrics while the command runs")
	pf.IntVar(&flagExporterPort, "exporter-port", 0, "metrics listen port")
}

// loadConfig layers the effective configuration: file (or defaults),
// then environment, then explicit flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	pf := rootCmd.PersistentFlags()
	if pf.Changed("base") {
		cfg.BaseDir = flagBase
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = util.ParseLogLevel(flagLogLevel)
		util.SetLevel(cfg.LogLevel)
	}
	if pf.Changed("exporter") {
		cfg.EnableExporter = flagExporter
	}
	if pf.Changed("exporter-port") {
		cfg.ExporterPort = flagExporterPort
	}

	if cfg.EnableExporter {
		metrics.StartMetricsServer(cfg.ExporterPort)
	}
	return cfg, nil
}

func main() {
	defer util.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
