// Command nipartd is the nipart daemon: it opens the client API socket,
// dials the configured plugin subprocesses, and runs the commander that
// reconciles desired network state against the running kernel state.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"

	"github.com/nispor/nipart/internal/daemon"
	"github.com/nispor/nipart/pkg/client"
	"github.com/nispor/nipart/pkg/nipartenv"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "nipartd: error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	env, err := nipartenv.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(env.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	ctx = dlog.WithLogger(ctx, dlog.WrapLogrus(logger))

	m := daemon.NewManager(env.SocketDir)
	m.SetLogLevel(logger.GetLevel())
	if env.PluginTimeout > 0 {
		m.PluginTimeout = time.Duration(env.PluginTimeout) * time.Second
	}

	// The API socket opens before the plugins are dialed so a client's
	// Ping succeeds as soon as the process is up.
	srv, err := daemon.Listen(client.SocketPath(env.SocketDir))
	if err != nil {
		return fmt.Errorf("opening api socket: %w", err)
	}
	dlog.Infof(ctx, "listening on %s", client.SocketPath(env.SocketDir))

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		SoftShutdownTimeout:  2 * time.Second,
		EnableSignalHandling: true,
	})
	g.Go("router", m.Run)
	srv.Serve(ctx, g, m)

	for _, name := range strings.Split(env.Plugins, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if err := m.ConnectPlugin(ctx, g, name); err != nil {
			dlog.Errorf(ctx, "connecting plugin %s: %v", name, err)
		}
	}

	return g.Wait()
}
