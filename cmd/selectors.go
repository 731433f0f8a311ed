package main

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/feedscrape/internal/selector"
)

var selectorsCmd = &cobra.Command{
	Use:   "selectors",
	Short: "Print the effective selector set as YAML",
	Long:  "Prints the built-in selectors merged with the override file from selectors.path. The output is a valid override file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dumpSelectors(cfg.Selectors.Path, cmd.OutOrStdout())
	},
}

func dumpSelectors(path string, out io.Writer) error {
	set, err := selector.Load(path)
	if err != nil {
		return err
	}
	data, err := set.Dump()
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return eris.Wrap(err, "selectors: write")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(selectorsCmd)
}
