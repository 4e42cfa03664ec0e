package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"AXR-Monitor/internal/task"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

// progressObserver 把批次事件渲染为彩色进度行写入 w。
func progressObserver(w io.Writer) task.Observer {
	return task.ObserverFunc(func(_ context.Context, event task.Event) {
		line := event.Message()
		switch event.Kind {
		case task.EventAttemptCompleted:
			line = green(line)
		case task.EventAttemptFailed:
			line = red(line)
		case task.EventPoll:
			line = gray(line)
		case task.EventBatchStarted, task.EventBatchFinished:
			line = bold(line)
		}
		fmt.Fprintln(w, line)
	})
}
