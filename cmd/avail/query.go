package main

import (
	"fmt"
	"strconv"

	"availsdk/internal/config"
	"availsdk/internal/domain"

	"github.com/spf13/cobra"
)

func newNonceCmd(cfg *config.Config) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "nonce <address>",
		Short: "Show the next nonce of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := domain.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			nonceMode := cfg.NonceMode
			if mode != "" {
				if nonceMode, err = domain.ParseNonceMode(mode); err != nil {
					return err
				}
			}
			s, err := openSession(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			query, err := s.query()
			if err != nil {
				return err
			}
			nonce, err := query.Nonce(cmd.Context(), account, nonceMode)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"address": account.SS58(),
				"mode":    nonceMode.String(),
				"nonce":   nonce,
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Nonce source: node, state or finalized")
	return cmd
}

func newBalanceCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the free, reserved and frozen balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := domain.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			query, err := s.query()
			if err != nil {
				return err
			}
			info, err := query.Balance(cmd.Context(), account)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"address":  account.SS58(),
				"nonce":    info.Nonce,
				"free":     info.Free.String(),
				"reserved": info.Reserved.String(),
				"frozen":   info.Frozen.String(),
			})
		},
	}
}

func newAppKeysCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "app-keys [owner]",
		Short: "List application keys, optionally only those of one owner",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var owner *domain.AccountID
			if len(args) == 1 {
				account, err := domain.ParseAccountID(args[0])
				if err != nil {
					return err
				}
				owner = &account
			}
			s, err := openSession(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			query, err := s.query()
			if err != nil {
				return err
			}
			entries, err := query.AppKeyEntries(cmd.Context(), owner)
			if err != nil {
				return err
			}
			type appKeyView struct {
				ID    uint32           `json:"id"`
				Key   string           `json:"key"`
				Owner domain.AccountID `json:"owner"`
			}
			views := make([]appKeyView, 0, len(entries))
			for _, entry := range entries {
				views = append(views, appKeyView{ID: entry.ID, Key: string(entry.Key), Owner: entry.Owner})
			}
			return printJSON(cmd.OutOrStdout(), views)
		},
	}
}

func newBlockCmd(cfg *config.Config) *cobra.Command {
	var appID int64
	var signer string

	cmd := &cobra.Command{
		Use:   "block <hash|number>",
		Short: "Show the data submissions of a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			var block domain.Block
			if number, parseErr := strconv.ParseUint(args[0], 10, 32); parseErr == nil {
				block, err = s.chain.BlockByNumber(cmd.Context(), number)
			} else {
				hash, hashErr := domain.ParseHash(args[0])
				if hashErr != nil {
					return fmt.Errorf("block must be a hash or a number: %w", hashErr)
				}
				block, err = s.chain.BlockByHash(cmd.Context(), hash)
			}
			if err != nil {
				return err
			}

			submissions := block.DataSubmissions()
			switch {
			case appID >= 0:
				submissions = block.DataSubmissionsByAppID(uint32(appID))
			case signer != "":
				account, err := domain.ParseAccountID(signer)
				if err != nil {
					return err
				}
				submissions = block.DataSubmissionsBySigner(account)
			}

			type submissionView struct {
				TxHash  domain.Hash      `json:"tx_hash"`
				TxIndex uint32           `json:"tx_index"`
				Signer  domain.AccountID `json:"signer"`
				AppID   uint32           `json:"app_id"`
				Data    string           `json:"data"`
				ASCII   string           `json:"ascii,omitempty"`
			}
			views := make([]submissionView, 0, len(submissions))
			for _, submission := range submissions {
				views = append(views, submissionView{
					TxHash:  submission.TxHash,
					TxIndex: submission.TxIndex,
					Signer:  submission.Signer,
					AppID:   submission.AppID,
					Data:    "0x" + submission.Hex(),
					ASCII:   submission.ASCII(),
				})
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"block_hash":      block.Hash,
				"block_number":    block.Number,
				"extrinsic_count": len(block.Extrinsics),
				"submissions":     views,
			})
		},
	}
	cmd.Flags().Int64Var(&appID, "app-id", -1, "Only submissions with this application id")
	cmd.Flags().StringVar(&signer, "signer", "", "Only submissions signed by this account")
	return cmd
}

func newDataProofCmd(cfg *config.Config) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "data-proof <tx-index>",
		Short: "Fetch the merkle proof of a data submission with kate_queryDataProof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txIndex, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid tx index %q", args[0])
			}
			var atHash *domain.Hash
			if at != "" {
				hash, err := domain.ParseHash(at)
				if err != nil {
					return err
				}
				atHash = &hash
			}
			s, err := openSession(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			proof, err := s.node.QueryDataProof(cmd.Context(), uint32(txIndex), atHash)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), proof)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Block hash (defaults to the best block)")
	return cmd
}
