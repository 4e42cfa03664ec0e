package web3

import "time"

// Config describes the optional chain endpoint used to inspect wallets.
type Config struct {
	Name        string        `yaml:"name"`
	RPCURL      string        `yaml:"rpc_url"`
	Description string        `yaml:"description"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Enabled reports whether an RPC endpoint is configured.
func (c Config) Enabled() bool {
	return c.RPCURL != ""
}
