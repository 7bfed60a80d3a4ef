package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"solana-autolink/internal/domain"
)

func (c *cli) processCmd() *cobra.Command {
	var wallets []string
	var signature string

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Evaluate pending observations once",
		Long: `Evaluate every pending observation of the selected wallets (all wallets
by default), or re-submit a single observation by signature.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if signature != "" && len(wallets) > 0 {
				return fmt.Errorf("--signature and --wallet are mutually exclusive")
			}

			a, err := c.newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if signature != "" {
				res, err := a.svc.ProcessSignature(cmd.Context(), signature)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}
			res, err := a.svc.ProcessAll(cmd.Context(), wallets...)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringSliceVar(&wallets, "wallet", nil, "restrict to wallet ids (repeatable)")
	cmd.Flags().StringVar(&signature, "signature", "", "process one observation by transaction signature")
	return cmd
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire unresolved observations past their deadline once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			expired, err := a.svc.Sweep(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), map[string]int{"expired": expired}); perr != nil {
				return perr
			}
			return err
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	var wallets []string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print queue and outcome statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.svc.Stats(cmd.Context(), c.cfg.Stats.Lookback, wallets...)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}

	cmd.Flags().StringSliceVar(&wallets, "wallet", nil, "restrict to wallet ids (repeatable)")
	cmd.Flags().Duration("lookback", 0, "window for linked/ignored counts and success rate")
	_ = c.v.BindPFlag("stats.lookback", cmd.Flags().Lookup("lookback"))
	return cmd
}

func (c *cli) linkCmd() *cobra.Command {
	return c.reviewCmd("link", "Confirm an observation under manual review", domain.StatusLinked)
}

func (c *cli) ignoreCmd() *cobra.Command {
	return c.reviewCmd("ignore", "Dismiss an observation under manual review", domain.StatusIgnored)
}

// reviewCmd builds the manual link / ignore commands.
func (c *cli) reviewCmd(use, short string, target domain.Status) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   use + " <observation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(actor) == "" {
				return fmt.Errorf("--actor is required")
			}

			a, err := c.newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			action := a.svc.Link
			if target == domain.StatusIgnored {
				action = a.svc.Ignore
			}
			o, err := action(cmd.Context(), args[0], actor)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"id":         o.ID,
				"signature":  o.Signature,
				"status":     o.Status,
				"updated_at": o.UpdatedAt,
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "reviewer id recorded in the transition log")
	return cmd
}
