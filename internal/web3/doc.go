// Package web3 holds the read-only chain helpers used to inspect the trading
// agent's wallet: address normalisation, chain snapshots and balance lookups.
// Job fulfilment itself happens on the marketplace side.
package web3
