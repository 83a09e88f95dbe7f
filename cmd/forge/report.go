package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newReportCmd prints a ranked table from a JSON file forge evolve --export
// produced, so a user doesn't have to eyeball raw JSON to see which
// candidate ranked where.
func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <export.json>",
		Short: "Print a ranked table from a forge evolve --export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var result evolveResult
			if err := json.Unmarshal(raw, &result); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "generations run: %d\n\n", result.Generations)
			fmt.Fprintln(w, "RANK\tFITNESS\tSIGNATURE\tID")
			for _, c := range result.Candidates {
				fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", c.Rank, c.Fitness, c.Signature, c.ID)
			}
			return w.Flush()
		},
	}
	return cmd
}
