// Package nipartenv loads the daemon's process configuration from the
// environment: a struct of env-tagged fields processed by
// github.com/sethvargo/go-envconfig.
package nipartenv

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// Env is the daemon's environment-sourced configuration: socket
// directory, how long startup waits for each plugin's socket to appear,
// and the plugins to dial at startup.
type Env struct {
	SocketDir     string `env:"NIPART_SOCKET_DIR,default=/var/run/nipart/sockets"`
	LogLevel      string `env:"NIPART_LOG_LEVEL,default=info"`
	PluginTimeout int    `env:"NIPART_PLUGIN_TIMEOUT_SECONDS,default=5"`
	Plugins       string `env:"NIPART_PLUGINS,default=kernel"`
}

// Load reads Env from the process environment.
func Load(ctx context.Context) (Env, error) {
	var env Env
	if err := envconfig.Process(ctx, &env); err != nil {
		return Env{}, err
	}
	return env, nil
}
