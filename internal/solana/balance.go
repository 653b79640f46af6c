// Package solana looks up on-chain token balances for linked wallets. An
// absent balance (RPC failure) is distinguishable from a confirmed zero
// (wallet with no token account): absent wallets are simply missing from
// the result map and the accrual engine skips them.
package solana

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// BalanceSource is the wallet balance lookup used by the accrual engine.
type BalanceSource interface {
	// GetBalances returns atomic token balances keyed by wallet address.
	// Wallets whose balance could not be confirmed are omitted, never
	// defaulted to zero.
	GetBalances(ctx context.Context, wallets []string) (map[string]int64, error)
}

// TokenBalanceSource reads SPL token balances for one mint over JSON-RPC.
type TokenBalanceSource struct {
	client *solanarpc.Client
	mint   solana.PublicKey
}

// NewTokenBalanceSource connects to the given RPC endpoint for the given
// token mint.
func NewTokenBalanceSource(rpcURL, mint string) (*TokenBalanceSource, error) {
	mintPk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint %q: %w", mint, err)
	}
	return &TokenBalanceSource{
		client: solanarpc.New(rpcURL),
		mint:   mintPk,
	}, nil
}

// GetBalances derives each wallet's associated token account and fetches
// its balance. A wallet with no token account has a confirmed balance of
// zero; RPC failures leave the wallet out of the result.
func (s *TokenBalanceSource) GetBalances(ctx context.Context, wallets []string) (map[string]int64, error) {
	out := make(map[string]int64, len(wallets))

	for _, wallet := range wallets {
		walletPk, err := solana.PublicKeyFromBase58(wallet)
		if err != nil {
			log.Printf("[BALANCE] Invalid wallet address %s: %v", wallet, err)
			continue
		}

		ata, _, err := solana.FindAssociatedTokenAddress(walletPk, s.mint)
		if err != nil {
			log.Printf("[BALANCE] ATA derivation failed for %s: %v", wallet, err)
			continue
		}

		bal, err := s.client.GetTokenAccountBalance(ctx, ata, solanarpc.CommitmentConfirmed)
		if err != nil {
			if errors.Is(err, solanarpc.ErrNotFound) {
				// No token account = confirmed zero balance.
				out[wallet] = 0
				continue
			}
			log.Printf("[BALANCE] RPC error for %s: %v", wallet, err)
			continue
		}

		var amount int64
		if _, err := fmt.Sscan(bal.Value.Amount, &amount); err != nil {
			log.Printf("[BALANCE] Unparseable balance %q for %s: %v", bal.Value.Amount, wallet, err)
			continue
		}
		out[wallet] = amount
	}

	return out, nil
}
