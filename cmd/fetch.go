package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newFetchCmd creates the 'fetch' subcommand.
func newFetchCmd(c *cli) *cobra.Command {
	var printBody bool
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Run one URL through the pipeline and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeApp, err := c.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			page, err := r.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "url:          %s\n", page.URL())
			fmt.Fprintf(out, "status:       %d\n", page.Status)
			fmt.Fprintf(out, "content-type: %s\n", page.ContentType)
			fmt.Fprintf(out, "rendered:     %t\n", page.Rendered)
			fmt.Fprintf(out, "bytes:        %d\n", len(page.Content))
			fmt.Fprintf(out, "loaded:       %s\n", page.LastLoaded.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
			if printBody {
				fmt.Fprintln(out)
				fmt.Fprintln(out, page.Content)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printBody, "body", false, "print the page content after the summary")
	return cmd
}
