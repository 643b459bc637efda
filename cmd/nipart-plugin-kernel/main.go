// Command nipart-plugin-kernel runs the rtnetlink-backed kernel plugin
// as its own subprocess, listening where the daemon expects to dial it.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"

	"github.com/nispor/nipart/internal/plugins/kernel"
	"github.com/nispor/nipart/internal/pluginworker"
	"github.com/nispor/nipart/pkg/nipartenv"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "nipart-plugin-kernel: error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	env, err := nipartenv.Load(ctx)
	if err != nil {
		return err
	}
	logger := logrus.New()
	if level, err := logrus.ParseLevel(env.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	ctx = dlog.WithLogger(ctx, dlog.WrapLogrus(logger))

	worker := pluginworker.New("kernel", kernel.New())
	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		SoftShutdownTimeout:  2 * time.Second,
		EnableSignalHandling: true,
	})
	if err := worker.Serve(ctx, g, filepath.Join(env.SocketDir, "plugin", "kernel")); err != nil {
		return err
	}
	return g.Wait()
}
