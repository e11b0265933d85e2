package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/silkcrawl/internal/headless/detector"
)

type scoreReport struct {
	Score      int            `json:"score"`
	Threshold  int            `json:"threshold"`
	Escalate   bool           `json:"escalate"`
	TextLength int            `json:"text_length"`
	Signals    map[string]int `json:"signals"`
}

// newScoreCmd creates the 'score' subcommand. It needs no network access.
func newScoreCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "score [file]",
		Short: "Score HTML for client-side rendering signals",
		Long:  `Reads HTML from the file, or from stdin when no file is given, and prints the classifier breakdown.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				html []byte
				err  error
			)
			if len(args) == 1 && args[0] != "-" {
				html, err = os.ReadFile(args[0])
			} else {
				html, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read html: %w", err)
			}

			res := detector.Score(string(html))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(scoreReport{
					Score:      res.Score,
					Threshold:  detector.Threshold,
					Escalate:   res.Escalate,
					TextLength: res.TextLength,
					Signals:    res.Signals,
				})
			}

			fmt.Fprintf(out, "score:       %d\n", res.Score)
			fmt.Fprintf(out, "threshold:   %d\n", detector.Threshold)
			fmt.Fprintf(out, "escalate:    %t\n", res.Escalate)
			fmt.Fprintf(out, "text length: %d\n", res.TextLength)
			for _, name := range detector.SignalNames() {
				fmt.Fprintf(out, "  %-20s %d\n", name, res.Signals[name])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
