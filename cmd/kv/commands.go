package kv

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [table] [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, key := args[0], args[1]
			resp, err := rpcRepo.Get(table, []byte(key))
			if err != nil {
				return err
			}
			value, err := decodeValue(valueType(), resp)
			if err != nil {
				return err
			}
			fmt.Printf("table=%s, key=%s, value=%s\n", table, key, value)
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [table] [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := encodeValue(valueType(), args[2])
			if err != nil {
				return err
			}
			if err := rpcRepo.Update(args[0], []byte(args[1]), value); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [table] [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcRepo.Delete(args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [table]",
		Short: "Counts the rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rpcRepo.Count(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("table=%s, count=%d\n", args[0], n)
			return nil
		},
	}
	nextSeqCmd = &cobra.Command{
		Use:   "next-seq [table]",
		Short: "Increments and prints the sequence counter of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := rpcRepo.NextSeq(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("table=%s, seq=%d\n", args[0], seq)
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list [table]",
		Short: "Prints every row of a table in key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := rpcRepo.List(args[0])
			if err != nil {
				return err
			}
			t := valueType()
			for _, e := range entries {
				value, err := decodeValue(t, e.Value)
				if err != nil {
					return fmt.Errorf("key %s: %w", e.Key, err)
				}
				fmt.Printf("%s=%s\n", e.Key, value)
			}
			return nil
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Prints the version blob of the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := rpcRepo.Version()
			if err != nil {
				return err
			}
			fmt.Printf("version=%s\n", v)
			return nil
		},
	}
	setVersionCmd = &cobra.Command{
		Use:   "set-version [version]",
		Short: "Replaces the version blob of the repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcRepo.SetVersion([]byte(args[0])); err != nil {
				return err
			}
			fmt.Println("version set successfully")
			return nil
		},
	}
	reloadCmd = &cobra.Command{
		Use:   "reload",
		Short: "Makes the server close and reopen its repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcRepo.Reload(); err != nil {
				return err
			}
			fmt.Println("reload successfully")
			return nil
		},
	}
	rollbackCmd = &cobra.Command{
		Use:   "rollback",
		Short: "Undoes the last write (requires a server with recovery enabled)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcRepo.Rollback(); err != nil {
				return err
			}
			fmt.Println("rollback successfully")
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the activity counters of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := rpcRepo.Stats()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
)
