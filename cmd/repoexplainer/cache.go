package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the explanation cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired entries from the durable cache backend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, flush, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		defer flush()

		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.results.Purge(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entries\n", n)
		return nil
	},
}

var cacheEvictFlags struct {
	ref          string
	instructions string
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict <owner/repo | github url>",
	Short: "Remove the cached explanation of one repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		defer flush()

		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		q := explanation.Query{Repository: args[0], Ref: cacheEvictFlags.ref, Instructions: cacheEvictFlags.instructions}
		if err := a.svc.Evict(cmd.Context(), q); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "evicted %s\n", args[0])
		return nil
	},
}

func init() {
	cacheEvictCmd.Flags().StringVar(&cacheEvictFlags.ref, "ref", "", "ref of the cached explanation")
	cacheEvictCmd.Flags().StringVarP(&cacheEvictFlags.instructions, "instructions", "i", "", "instructions of the cached explanation")
	cacheCmd.AddCommand(cachePurgeCmd, cacheEvictCmd)
}
