package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"AXR-Monitor/internal/web3"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name   string
	RPCURL string
	Notes  string
}

var _ web3.Client = (*Client)(nil)

// Client implements web3.Client for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	mu        sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	c.rpcClient = nil
}

func (c *Client) ethClient() (*ethclient.Client, error) {
	if c == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth == nil {
		return nil, errors.New("以太坊客户端已关闭")
	}
	return c.eth, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	eth, err := c.ethClient()
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		Name:        c.name,
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// FetchWallet reads balance, nonce and code presence for address at the
// latest block.
func (c *Client) FetchWallet(ctx context.Context, address string) (web3.WalletSnapshot, error) {
	eth, err := c.ethClient()
	if err != nil {
		return web3.WalletSnapshot{}, err
	}
	addr, err := web3.ParseAddress(address)
	if err != nil {
		return web3.WalletSnapshot{}, err
	}

	balance, err := eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return web3.WalletSnapshot{}, fmt.Errorf("查询余额失败: %w", err)
	}
	nonce, err := eth.NonceAt(ctx, addr, nil)
	if err != nil {
		return web3.WalletSnapshot{}, fmt.Errorf("查询交易计数失败: %w", err)
	}
	code, err := eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return web3.WalletSnapshot{}, fmt.Errorf("查询合约代码失败: %w", err)
	}

	return web3.WalletSnapshot{
		Address:    addr.Hex(),
		BalanceWei: balance.String(),
		Balance:    FormatEther(balance),
		Nonce:      nonce,
		IsContract: len(code) > 0,
	}, nil
}

// FormatEther renders a wei amount as a decimal ether string without
// trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, big.NewInt(params.Ether))
	s := r.FloatString(18)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}
