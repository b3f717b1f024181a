package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/intellect4all/kvkernel/session"
)

var (
	scanStart string
	scanEnd   string
)

func init() {
	scanCmd.Flags().StringVar(&scanStart, "start", "", "inclusive range start (empty means unbounded)")
	scanCmd.Flags().StringVar(&scanEnd, "end", "", "exclusive range end (empty means unbounded)")
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan <table>",
	Short: "Stream key/value pairs in [--start, --end) in one read-only transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var start, end []byte
		if scanStart != "" {
			start = []byte(scanStart)
		}
		if scanEnd != "" {
			end = []byte(scanEnd)
		}

		return withReadOnlyTable(args[0], func(cur *session.Cursor) error {
			cur.SetRange(start, end)
			count := 0
			for {
				key, value, found, err := cur.Next()
				if err != nil {
					return err
				}
				if !found {
					break
				}
				fmt.Printf("%s\t%s\n", key, value)
				count++
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d keys\n", count)
			return nil
		})
	},
}
