package cmd

import (
	"github.com/spf13/cobra"
)

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [urls...]",
		Short: "Crawl the configured seeds plus any URLs given as arguments",
		Long: `Queues crawler.seeds followed by the arguments and fetches them in order.
Interrupting the command lets in-flight fetches finish and leaves the rest queued.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeApp, err := c.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			return r.Crawl(cmd.Context(), args...)
		},
	}
}
