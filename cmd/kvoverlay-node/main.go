// This file is part of kvoverlay, an unstructured peer-to-peer
// key/value lookup overlay written in Go.
//
// kvoverlay is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// kvoverlay is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Command kvoverlay-node starts a single overlay peer: it loads
// configuration, brings up the TCP listener and control-plane HTTP
// server, greets any configured neighbors, and then hands the terminal
// to the operator menu (§6) until shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bfix/gospel/logger"
	"golang.org/x/sync/errgroup"

	"kvoverlay/cli"
	"kvoverlay/config"
	"kvoverlay/controlapi"
	"kvoverlay/node"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvoverlay-node: %v\n", err)
		return 1
	}
	lvl, err := logLevelFromName(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvoverlay-node: %v\n", err)
		return 1
	}
	logger.SetLogLevel(lvl)

	rt, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvoverlay-node: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return rt.Serve(gctx) })

	api := controlapi.New(rt, cfg.Control.Addr, cfg.Metrics.Path)
	group.Go(func() error { return api.Serve(gctx) })

	logger.Printf(logger.INFO, "[kvoverlay-node] listening on %s, control API on %s\n",
		rt.Local(), cfg.Control.Addr)

	if err := cli.Run(ctx, rt, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "kvoverlay-node: cli: %v\n", err)
	}
	stop()

	if err := group.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "kvoverlay-node: %v\n", err)
		return 1
	}
	return 0
}

// logLevelFromName maps the config's textual log level onto gospel's
// integer logger constants.
func logLevelFromName(name string) (int, error) {
	switch name {
	case "error":
		return logger.ERROR, nil
	case "warn":
		return logger.WARN, nil
	case "info":
		return logger.INFO, nil
	case "debug":
		return logger.DBG, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
