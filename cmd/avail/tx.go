package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"availsdk/internal/application"
	"availsdk/internal/config"
	"availsdk/internal/domain"

	"github.com/spf13/cobra"
)

type txFlags struct {
	AppID   int64
	WaitFor string
	Nonce   int64
	Tip     string
	Era     uint64
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.AppID, "app-id", -1, "Application id (defaults to AVAIL_APP_ID)")
	cmd.Flags().StringVar(&f.WaitFor, "wait", "", "Wait for inclusion or finalization (defaults to AVAIL_WAIT_FOR)")
	cmd.Flags().Int64Var(&f.Nonce, "nonce", -1, "Explicit nonce instead of asking the node")
	cmd.Flags().StringVar(&f.Tip, "tip", "", "Tip in base units")
	cmd.Flags().Uint64Var(&f.Era, "era", 0, "Mortality period in blocks")
}

// apply layers the flags over the account defaults.
func (f *txFlags) apply(account application.Account) (application.Account, error) {
	if f.AppID >= 0 {
		account = account.WithAppID(uint32(f.AppID))
	}
	if f.WaitFor != "" {
		wait, err := domain.ParseWaitFor(f.WaitFor)
		if err != nil {
			return account, err
		}
		account = account.WithWait(wait)
	}
	if f.Nonce >= 0 {
		account = account.WithNonce(uint32(f.Nonce))
	}
	if f.Tip != "" {
		tip, ok := new(big.Int).SetString(f.Tip, 10)
		if !ok || tip.Sign() < 0 {
			return account, fmt.Errorf("invalid tip %q", f.Tip)
		}
		account = account.WithTip(tip)
	}
	if f.Era > 0 {
		account = account.WithEra(f.Era)
	}
	return account, nil
}

func newSubmitDataCmd(cfg *config.Config) *cobra.Command {
	var flags txFlags
	var isHex bool

	cmd := &cobra.Command{
		Use:   "submit-data <data>",
		Short: "Submit a data blob with DataAvailability.submit_data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(args[0])
			if isHex {
				decoded, err := domain.DecodeHexData(args[0])
				if err != nil {
					return fmt.Errorf("invalid hex data: %w", err)
				}
				data = decoded
			}
			if len(data) == 0 {
				return errors.New("data must not be empty")
			}

			s, err := openSession(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			account, err := s.account()
			if err != nil {
				return err
			}
			if account, err = flags.apply(account); err != nil {
				return err
			}
			txs, err := s.transactions()
			if err != nil {
				return err
			}

			result, err := txs.SubmitData(cmd.Context(), account, data)
			if err != nil {
				return describeFailure(err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"tx_hash":      result.Details.TxHash,
				"block_hash":   result.Details.BlockHash,
				"block_number": result.Details.BlockNumber,
				"tx_index":     result.Details.TxIndex,
				"status":       result.Details.Status,
				"who":          result.Event.Who,
				"data_hash":    result.Event.DataHash,
				"data":         "0x" + hex.EncodeToString(result.Data),
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&isHex, "hex", false, "Treat data as hex")
	return cmd
}

func newTransferCmd(cfg *config.Config) *cobra.Command {
	var flags txFlags
	var allowDeath bool

	cmd := &cobra.Command{
		Use:   "transfer <dest> <amount>",
		Short: "Transfer funds (keep-alive unless --allow-death)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := domain.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			amount, ok := new(big.Int).SetString(args[1], 10)
			if !ok || amount.Sign() <= 0 {
				return fmt.Errorf("invalid amount %q", args[1])
			}

			s, err := openSession(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			account, err := s.account()
			if err != nil {
				return err
			}
			if account, err = flags.apply(account); err != nil {
				return err
			}
			txs, err := s.transactions()
			if err != nil {
				return err
			}

			var result application.TransferResult
			if allowDeath {
				result, err = txs.TransferAllowDeath(cmd.Context(), account, dest, amount)
			} else {
				result, err = txs.TransferKeepAlive(cmd.Context(), account, dest, amount)
			}
			if err != nil {
				return describeFailure(err)
			}
			out := map[string]any{
				"tx_hash":    result.Details.TxHash,
				"block_hash": result.Details.BlockHash,
				"status":     result.Details.Status,
				"from":       result.Event.From,
				"to":         result.Event.To,
				"amount":     result.Event.Amount.String(),
			}
			if result.Killed != nil {
				out["killed"] = result.Killed.Account
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&allowDeath, "allow-death", false, "Allow the sender account to be reaped")
	return cmd
}

// describeFailure keeps the chain's failure reason and adds the tx hash when known.
func describeFailure(err error) error {
	var failed *domain.TransactionFailed
	if errors.As(err, &failed) && failed.Details != nil && !failed.Details.TxHash.IsZero() {
		return fmt.Errorf("transaction %s failed: %w", failed.Details.TxHash, err)
	}
	return err
}
