package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/intellect4all/kvkernel/config"
	"github.com/intellect4all/kvkernel/session"
)

func init() {
	rootCmd.AddCommand(checkpointCmd)
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <data-dir>",
	Short: "Materialize every table and truncate the global WAL",
	Long: `checkpoint opens data-dir, runs Connection.Checkpoint (materialize
committed MVCC versions into each table's tree, flush dirty pages,
rotate the checkpoint slot, then truncate the shared global WAL back to
empty), and closes the connection. Run it standalone between bursts of
writes to bound WAL size and keep a future recover's replay window
short — Close already does this on a clean shutdown, so this is for a
long-lived process that never closes its connection.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		conn, err := session.Open(dir, config.Default(dir))
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := conn.Checkpoint(); err != nil {
			return fmt.Errorf("checkpoint failed: %w", err)
		}
		fmt.Println("checkpoint complete")
		return nil
	},
}
