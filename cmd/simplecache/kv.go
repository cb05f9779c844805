package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/simplecache"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAMESPACE KEY",
		Short: "Print the value stored under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok, err := a.cache.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s not found", a.cache.KeyCodec().BuildKey(args[0], args[1]))
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	var (
		ttl      time.Duration
		ifAbsent bool
	)
	cmd := &cobra.Command{
		Use:   "put NAMESPACE KEY VALUE",
		Short: "Store a value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if ifAbsent {
				ok, err := a.cache.PutIfAbsent(cmd.Context(), args[0], args[1], args[2], ttl)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "exists")
					return nil
				}
				fmt.Fprintln(out, "stored")
				return nil
			}
			if err := a.cache.Put(cmd.Context(), args[0], args[1], args[2], ttl); err != nil {
				return err
			}
			fmt.Fprintln(out, "stored")
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time to live; 0 keeps the entry until removed")
	cmd.Flags().BoolVar(&ifAbsent, "if-absent", false, "only store when the key does not exist")
	return cmd
}

func newDelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "del NAMESPACE KEY...",
		Short: "Remove one or more keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.cache.RemoveAll(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}
}

func newExistsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists NAMESPACE KEY...",
		Short: "Count how many of the keys exist",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.cache.CountExisting(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear NAMESPACE",
		Short: "Delete every key of a namespace",
		Long: `Delete every key of a namespace.

This enumerates the whole keyspace with KEYS and blocks the server while it
runs. It is not atomic: keys written concurrently may survive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.cache.Clear(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}
}

func newFlushCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Drop every key of the logical database",
		Long: `Drop every key of the logical database the store is bound to,
including keys that do not belong to simplecache. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var intent simplecache.Intent
			if yes {
				intent = simplecache.FlushDatabase
			}
			if _, err := a.cache.ClearAll(cmd.Context(), intent); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "flushed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm flushing the whole database")
	return cmd
}
