package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sells-group/bill-extract/internal/scan"
)

var (
	countRoot    string
	countByOrder bool
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count bill PDFs inside Bills folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("count"); err != nil {
			return err
		}
		opts := scan.FromConfig(cfg.Source)
		opts.Extensions = []string{".pdf"}
		if cmd.Flags().Changed("root") {
			opts.Root = countRoot
		}

		total, byOrder, err := scan.Count(cmd.Context(), opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if countByOrder {
			dirs := make([]string, 0, len(byOrder))
			for d := range byOrder {
				dirs = append(dirs, d)
			}
			sort.Strings(dirs)
			for _, d := range dirs {
				fmt.Fprintf(out, "%6d  %s\n", byOrder[d], d)
			}
		}
		fmt.Fprintf(out, "Total number of .pdf files in all '%s' folders within '%s': %d\n", opts.DirName, opts.Root, total)
		return nil
	},
}

func init() {
	countCmd.Flags().StringVar(&countRoot, "root", "", "folder to scan (default from config)")
	countCmd.Flags().BoolVar(&countByOrder, "by-work-order", false, "also print the count per work order folder")
	rootCmd.AddCommand(countCmd)
}
