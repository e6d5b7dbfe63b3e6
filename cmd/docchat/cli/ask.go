package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docchat/internal/service"
)

var showSummary bool

var askCmd = &cobra.Command{
	Use:   "ask FILE QUESTION...",
	Short: "Answer one question about a document and exit",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := ingestFile(ctx, a.svc, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if showSummary {
			printSummary(out, res)
		}

		ans, err := a.svc.Answer(ctx, res.SessionID, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ans.Text)
		if len(ans.Grounding) > 0 {
			fmt.Fprintln(out, "\nSources:")
			for i, r := range ans.Grounding {
				fmt.Fprintf(out, "  [%d] offset=%d score=%.3f %s\n", i+1, r.Passage.Offset, r.Score, snippet(r.Passage.Text, 100))
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVarP(&showSummary, "summary", "s", false, "Print the document analysis before the answer")
}

func ingestFile(ctx context.Context, svc *service.Service, path string) (*service.IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return svc.Ingest(ctx, filepath.Base(path), string(data))
}

func printSummary(out io.Writer, res *service.IngestResult) {
	if res.SummaryFailed {
		fmt.Fprintln(out, "Analysis unavailable.")
		fmt.Fprintln(out)
		return
	}
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintln(out, res.Summary.Synopsis)
	if len(res.Summary.KeyTerms) > 0 {
		fmt.Fprintln(out, "\nKey terms:")
		for _, t := range res.Summary.KeyTerms {
			fmt.Fprintf(out, "  - %s: %s\n", t.Term, t.Explanation)
		}
	}
	if res.Summary.Disclaimer != "" {
		fmt.Fprintln(out, "\n"+res.Summary.Disclaimer)
	}
	fmt.Fprintln(out)
}

func snippet(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
