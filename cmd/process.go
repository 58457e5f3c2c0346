package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:     "process",
	Aliases: []string{"p"},
	Short:   "Run one scan-and-process cycle",
	Long: `Process scans the configured roots, reprocesses every asset that
changed since the last cycle, and fails when the scan leaves errors.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := newPipeline()
		if err != nil {
			return err
		}

		ran, err := p.ProcessStrict()
		if err != nil {
			return err
		}
		if !ran {
			fmt.Println("skipped (throttled or already in flight)")
			return nil
		}

		fmt.Printf("processed %d asset(s)\n", len(p.Paths()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
