package web3

import (
	"context"
)

// ChainSnapshot represents summarized network metadata for reporting.
type ChainSnapshot struct {
	Name        string `json:"name,omitempty"`
	ChainID     string `json:"chainId"`
	BlockNumber string `json:"blockNumber"`
	Notes       string `json:"notes,omitempty"`
}

// WalletSnapshot is the on-chain view of a single wallet at the latest block.
type WalletSnapshot struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balanceWei"`
	Balance    string `json:"balance"`
	Nonce      uint64 `json:"nonce"`
	IsContract bool   `json:"isContract"`
}

// Client defines the read-only chain operations used by the CLI.
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	FetchWallet(ctx context.Context, address string) (WalletSnapshot, error)
	Close()
}
