package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear stored node results",
	}

	sizeCmd := &cobra.Command{
		Use:   "size",
		Short: "Print the total size of stored results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, closeTier, err := newEngine(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeTier()

			n, err := eng.CacheSizeBytes(cmd.Context())
			if err != nil {
				return err
			}
			if raw, _ := cmd.Flags().GetBool("bytes"); raw {
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s cache)\n", humanBytes(n), cfg.Cache.Backend)
			return nil
		},
	}
	sizeCmd.Flags().Bool("bytes", false, "Print the size as a plain byte count")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, closeTier, err := newEngine(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeTier()

			if err := eng.ClearCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared (%s cache)\n", cfg.Cache.Backend)
			return nil
		},
	}

	cmd.AddCommand(sizeCmd, clearCmd)
	return cmd
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
