// Command kvctl is the operator-facing entry point for the kernel: point
// reads/writes, range scans, crash-recovery reporting, a runnable
// walkthrough of the transaction model, and the storage-engine
// comparison benchmark. Grounded on cuemby-warren's cmd/warren cobra
// root-command wiring (persistent --log-level/--log-json flags resolved
// in cobra.OnInitialize before any subcommand runs), superseding
// cmd/demo and cmd/benchmark now that both predate the current btree
// package's Open/Range API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intellect4all/kvkernel/logx"
)

var (
	logLevel string
	logJSON  bool
	dataDir  string
)

var rootCmd = &cobra.Command{
	Use:   "kvctl",
	Short: "Operate and benchmark the kvkernel storage engine",
	Long: `kvctl is the command-line front end for the kvkernel transactional
storage engine: point operations and range scans against a running
database directory, a crash-recovery report, a walkthrough demo of
snapshot isolation and abort rollback, and a three-way benchmark
against the hashindex and lsm comparison engines.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON instead of console format")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./kvkernel-data", "database directory")
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logx.Init(logx.Config{Level: logx.Level(logLevel), JSONOutput: logJSON})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
