package acp

import (
	"context"
	"net/url"
	"strings"

	"AXR-Monitor/internal/auth"
	xerrors "AXR-Monitor/internal/errors"
	"AXR-Monitor/internal/web3"
)

// FetchAgent 按钱包地址查询智能体资料。远端不支持精确地址查询，
// 因此以地址作为全文检索条件，再在本地做不区分大小写的精确匹配。
func (c *Client) FetchAgent(ctx context.Context, cred auth.Credential, walletAddress string) (*AgentProfile, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent wallet address is required")
	}

	var resp envelope[[]AgentProfile]
	query := url.Values{"query": []string{walletAddress}}
	if err := c.get(ctx, cred, "/acp/agents", query, &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "Failed to get agent",
			xerrors.WithMetadata("wallet_address", walletAddress))
	}

	for i := range resp.Data {
		if web3.SameAddress(resp.Data[i].WalletAddress, walletAddress) {
			agent := resp.Data[i]
			return &agent, nil
		}
	}
	return nil, xerrors.Newf(xerrors.CodeAgentNotFound, "Agent not found: %s", walletAddress)
}
