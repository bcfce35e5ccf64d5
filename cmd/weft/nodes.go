package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/weft/internal/config"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/spf13/cobra"
)

func newNodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes [type]",
		Short: "List the registered node types, or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Cache.Backend = config.BackendMemory
			eng, closeTier, err := newEngine(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeTier()

			specs := eng.ListNodeSpecs()
			if len(args) == 1 {
				spec, ok := eng.NodeSpec(args[0])
				if !ok {
					return fmt.Errorf("unknown node type %q", args[0])
				}
				specs = []domain.NodeSpec{spec}
			}
			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(specs)
			}
			tui.NewPrinter(cmd.OutOrStdout()).Specs(specs)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print node specs as JSON")
	return cmd
}
