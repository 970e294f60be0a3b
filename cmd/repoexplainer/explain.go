package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
	"github.com/BaoNguyen09/repo-explainer/internal/port/sourcehost"
)

var explainFlags struct {
	ref          string
	instructions string
	json         bool
	token        string
}

var explainCmd = &cobra.Command{
	Use:   "explain <owner/repo | github url>",
	Short: "Explain one repository and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runExplain,
}

func init() {
	explainCmd.Flags().StringVar(&explainFlags.ref, "ref", "", "branch, tag, or commit to explain")
	explainCmd.Flags().StringVarP(&explainFlags.instructions, "instructions", "i", "", "focus the explanation on a question")
	explainCmd.Flags().BoolVar(&explainFlags.json, "json", false, "print the result as JSON")
	explainCmd.Flags().StringVar(&explainFlags.token, "github-token", "", "GitHub token for this run (default: github.token)")
}

func runExplain(cmd *cobra.Command, args []string) error {
	cfg, flush, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if explainFlags.token != "" {
		ctx = sourcehost.WithToken(ctx, explainFlags.token)
	}

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	progress := term.IsTerminal(int(os.Stderr.Fd())) //nolint:gosec // fd fits in int
	q := explanation.Query{Repository: args[0], Ref: explainFlags.ref, Instructions: explainFlags.instructions}

	for ev := range a.svc.Stream(ctx, q) {
		switch ev.Type {
		case explanation.EventStatus:
			if progress {
				fmt.Fprintf(os.Stderr, "\r\033[K%s...", ev.Stage)
			}
		case explanation.EventError:
			if progress {
				fmt.Fprint(os.Stderr, "\r\033[K")
			}
			return errors.New(ev.Detail)
		case explanation.EventResult:
			if progress {
				fmt.Fprint(os.Stderr, "\r\033[K")
			}
			return printResult(cmd, ev.Result)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return domain.ErrInternal
}

func printResult(cmd *cobra.Command, res *explanation.Result) error {
	out := cmd.OutOrStdout()
	if explainFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err := fmt.Fprintln(out, res.Explanation)
	return err
}
