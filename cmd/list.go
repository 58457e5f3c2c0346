package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List the manifest with fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := newPipeline()
		if err != nil {
			return err
		}

		if _, err := p.Process(); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tTYPE\tENTRY\tVERSIONED")
		for _, path := range p.Paths() {
			a, ok := p.LookupAsset(path)
			if !ok {
				continue
			}
			versioned := "-"
			if a.Entry() {
				versioned = a.PathVersioned()
			}
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", path, a.ContentType(), a.Entry(), versioned)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if errs := p.Errors(); len(errs) > 0 {
			fmt.Fprintf(os.Stderr, "\n%d error(s):\n", len(errs))
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, " ", e)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
