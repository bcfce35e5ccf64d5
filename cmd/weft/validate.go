package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/config"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Check a workflow without running it",
		Long:  `Reports structural issues (unknown types or ports, kind mismatches, cycles) and parameter or input problems.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	cmd.Flags().Bool("json", false, "Print issues as JSON")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	wf, err := weft.LoadWorkflow(args[0])
	if err != nil {
		return err
	}
	// Validation never touches stored results.
	cfg.Cache.Backend = config.BackendMemory
	eng, closeTier, err := newEngine(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeTier()

	issues := eng.ValidateWorkflow(cmd.Context(), wf)
	if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(issues); err != nil {
			return err
		}
	} else {
		tui.NewPrinter(cmd.OutOrStdout()).Issues(wf.Name, issues)
	}
	if len(issues) > 0 {
		return fmt.Errorf("workflow %s has %d issue(s)", wf.Name, len(issues))
	}
	return nil
}
