package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// main 是 axrctl 命令行工具的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv)
	stop()
	os.Exit(code)
}
