package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"AXR-Monitor/internal/auth"
	"AXR-Monitor/internal/config"
	xerrors "AXR-Monitor/internal/errors"
)

// cli 保存一次命令行调用的输入输出与全局参数。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	lookup config.LookupFunc

	configPath      string
	callerID        string
	metricsTextfile string
}

// errorEnvelope 是写入 stderr 的错误结构。
type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// execute 运行命令并返回进程退出码。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer, lookup config.LookupFunc) int {
	c := &cli{stdout: stdout, stderr: stderr, lookup: lookup}
	root := c.newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		return c.fail(err)
	}
	return 0
}

func (c *cli) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "axrctl",
		Short:         "Submit and monitor swap jobs on the ACP marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to a YAML config file (defaults to $"+config.EnvConfigPath+")")
	flags.StringVar(&c.callerID, "caller", "", "caller id to resolve against the whitelist")
	flags.StringVar(&c.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(
		c.newCheckStatusCommand(),
		c.newTransactionCommand(),
		c.newActiveJobsCommand(),
	)
	return root
}

// caller 根据 --caller 是否显式提供选择解析策略。
func (c *cli) caller(cmd *cobra.Command) auth.Caller {
	if cmd.Flags().Changed("caller") {
		return auth.CallerID(c.callerID)
	}
	return auth.DefaultCaller()
}

func (c *cli) writeJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail 输出错误信封并返回退出码。权限拒绝是预期结果，退出码为 0。
func (c *cli) fail(err error) int {
	code := xerrors.CodeOf(err)
	_ = json.NewEncoder(c.stderr).Encode(errorEnvelope{Error: err.Error(), Code: string(code)})
	if code == xerrors.CodePermissionDenied {
		return 0
	}
	return 1
}
