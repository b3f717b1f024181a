package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/intellect4all/kvkernel/config"
	"github.com/intellect4all/kvkernel/session"
)

func init() {
	rootCmd.AddCommand(putCmd, getCmd, deleteCmd)
}

var putCmd = &cobra.Command{
	Use:   "put <table> <key> <value>",
	Short: "Write a key/value pair in its own committed transaction",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTable(args[0], func(cur *session.Cursor) error {
			return cur.Put([]byte(args[1]), []byte(args[2]))
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <table> <key>",
	Short: "Read a key's current value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReadOnlyTable(args[0], func(cur *session.Cursor) error {
			value, found, err := cur.Get([]byte(args[1]))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("key not found: %s", args[1])
			}
			fmt.Println(string(value))
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <table> <key>",
	Short: "Delete a key in its own committed transaction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTable(args[0], func(cur *session.Cursor) error {
			return cur.Delete([]byte(args[1]))
		})
	},
}

// withTable opens a connection rooted at --data-dir, runs fn inside one
// committed transaction against table, and closes everything down
// afterward — the shape every single-shot point-operation subcommand
// shares.
func withTable(table string, fn func(cur *session.Cursor) error) error {
	uri := "table:" + table
	conn, err := session.Open(dataDir, config.Default(dataDir))
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := conn.OpenSession()
	if err := sess.Create(uri); err != nil {
		return err
	}

	st, err := sess.Transaction()
	if err != nil {
		return err
	}
	defer st.Close()

	cur, err := sess.OpenCursor(uri)
	if err != nil {
		return err
	}
	if err := fn(cur); err != nil {
		return err
	}
	return st.Commit()
}

// withReadOnlyTable is withTable without a commit: reads never need one,
// and SessionTxn.Close's deferred auto-abort is a correctness no-op
// against a transaction that issued no writes.
func withReadOnlyTable(table string, fn func(cur *session.Cursor) error) error {
	uri := "table:" + table
	conn, err := session.Open(dataDir, config.Default(dataDir))
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := conn.OpenSession()
	if err := sess.Create(uri); err != nil {
		return err
	}

	st, err := sess.Transaction()
	if err != nil {
		return err
	}
	defer st.Close()

	cur, err := sess.OpenCursor(uri)
	if err != nil {
		return err
	}
	return fn(cur)
}
