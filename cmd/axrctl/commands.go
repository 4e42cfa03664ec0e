package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"AXR-Monitor/internal/acp"
	"AXR-Monitor/internal/auth"
	xerrors "AXR-Monitor/internal/errors"
	"AXR-Monitor/internal/task"
	"AXR-Monitor/internal/web3"
	"AXR-Monitor/internal/web3/ethereum"
)

// statusReport 是 check_status 的输出，链上信息仅在配置 RPC 时出现。
type statusReport struct {
	*acp.AgentProfile
	Chain *chainReport `json:"chain,omitempty"`
}

type chainReport struct {
	Network web3.ChainSnapshot  `json:"network"`
	Wallet  web3.WalletSnapshot `json:"wallet"`
}

// transactionReport 是 transaction 的输出。
type transactionReport struct {
	Summary transactionSummary   `json:"summary"`
	Details []task.AttemptResult `json:"details"`
	Events  []task.Event         `json:"events,omitempty"`
}

type transactionSummary struct {
	BatchID       string `json:"batchId"`
	Success       bool   `json:"success"`
	CompletedJobs int    `json:"completedJobs"`
	FailedJobs    int    `json:"failedJobs"`
}

// withRuntime 初始化依赖、解析凭据后执行 fn，并在结束时释放资源。
func (c *cli) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime, cred auth.Credential) error) error {
	ctx := cmd.Context()
	rt, err := c.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			rt.log.Warn("shutdown incomplete", "error", cerr)
		}
	}()

	cred, err := rt.gate.Resolve(c.caller(cmd))
	if err != nil {
		return err
	}
	return fn(ctx, rt, cred)
}

func (c *cli) newCheckStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check_status",
		Short: "Show the trading agent profile and, when an RPC endpoint is set, its wallet on chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime, cred auth.Credential) error {
				report, err := checkStatus(ctx, rt, cred)
				if err != nil {
					return err
				}
				return c.writeJSON(report)
			})
		},
	}
}

// checkStatus 并发查询智能体资料和链上钱包，链上查询失败只记录警告。
func checkStatus(ctx context.Context, rt *runtime, cred auth.Credential) (*statusReport, error) {
	report := &statusReport{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile, err := rt.client.FetchAgent(gctx, cred, rt.cfg.Agent.Address)
		if err != nil {
			return err
		}
		report.AgentProfile = profile
		return nil
	})
	if rt.cfg.Web3.Enabled() {
		g.Go(func() error {
			chain, err := inspectChain(gctx, rt)
			if err != nil {
				rt.log.Warn("chain lookup failed", "rpc_url", rt.cfg.Web3.RPCURL, "error", err)
				return nil
			}
			report.Chain = chain
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// dialChain 连接配置的 RPC 节点。
var dialChain = func(ctx context.Context, cfg web3.Config) (web3.Client, error) {
	return ethereum.NewClient(ctx, ethereum.Config{Name: cfg.Name, RPCURL: cfg.RPCURL, Notes: cfg.Description})
}

func inspectChain(ctx context.Context, rt *runtime) (*chainReport, error) {
	cfg := rt.cfg.Web3
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	client, err := dialChain(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	network, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	wallet, err := client.FetchWallet(ctx, rt.cfg.Agent.Address)
	if err != nil {
		return nil, err
	}
	return &chainReport{Network: network, Wallet: wallet}, nil
}

func (c *cli) newTransactionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transaction [count]",
		Short: "Submit a batch of swap jobs and wait for every job to finish",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime, cred auth.Credential) error {
				count := rt.cfg.Batch.Count
				if len(args) == 1 {
					n, err := strconv.Atoi(strings.TrimSpace(args[0]))
					if err != nil || n < 0 {
						return xerrors.Newf(xerrors.CodeInvalidArgument,
							"transaction count must be a non-negative integer, got %q", args[0])
					}
					count = n
				}

				published, err := rt.publishers(ctx)
				if err != nil {
					return err
				}
				orchestrator, err := rt.orchestrator()
				if err != nil {
					return err
				}

				observer := task.Observers(progressObserver(c.stderr), published)
				result, err := orchestrator.RunBatch(ctx, cred, rt.cfg.Agent.Address, count, rt.cfg.Batch.Swaps, observer)
				if err != nil {
					return err
				}
				return c.writeJSON(transactionReport{
					Summary: transactionSummary{
						BatchID:       result.BatchID,
						Success:       result.Success,
						CompletedJobs: result.CompletedJobs,
						FailedJobs:    result.FailedJobs,
					},
					Details: result.Results,
					Events:  rt.drainEvents(),
				})
			})
		},
	}
}

func (c *cli) newActiveJobsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "active_jobs",
		Short: "List jobs that have not reached a terminal phase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime, cred auth.Credential) error {
				jobs, err := rt.client.ListActiveJobs(ctx, cred)
				if err != nil {
					return err
				}
				return c.writeJSON(jobs)
			})
		},
	}
}
