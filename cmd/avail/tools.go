package main

import (
	"fmt"
	"strconv"

	"availsdk/internal/application"
	"availsdk/internal/domain"

	"github.com/spf13/cobra"
)

func newCommissionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commission <percent>",
		Short: "Convert a whole commission percentage to the Perbill value the chain expects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			percent, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid percent %q", args[0])
			}
			perbill, err := application.CommissionToPerbill(percent)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), perbill)
			return err
		},
	}
}

func newMultisigAddressCmd() *cobra.Command {
	var threshold uint16

	cmd := &cobra.Command{
		Use:   "multisig-address <signatory>...",
		Short: "Derive the multisig account of a signatory set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signatories := make([]domain.AccountID, 0, len(args))
			for _, raw := range args {
				account, err := domain.ParseAccountID(raw)
				if err != nil {
					return err
				}
				signatories = append(signatories, account)
			}
			address, err := application.MultisigAddress(signatories, threshold)
			if err != nil {
				return err
			}
			sorted := application.SortSignatories(signatories)
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"address":     address,
				"threshold":   threshold,
				"signatories": sorted,
			})
		},
	}
	cmd.Flags().Uint16VarP(&threshold, "threshold", "t", 2, "Approvals required")
	return cmd
}
