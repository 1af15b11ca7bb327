package main

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deskpilot/internal/api"
	"deskpilot/internal/config"
	"deskpilot/internal/desktop"
	"deskpilot/internal/network"
	"deskpilot/internal/osutils"
)

func newServeCmd(a *app) *cobra.Command {
	var listen, relay, token string
	var noAPI, noRelay bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve remote control over HTTP, WebSocket and UDP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			f := cmd.Flags()
			if f.Changed("listen") {
				cfg.API.Listen = listen
				cfg.API.Enabled = true
			}
			if f.Changed("relay") {
				cfg.Relay.Listen = relay
				cfg.Relay.Enabled = true
			}
			if f.Changed("token") {
				cfg.API.Token = token
			}
			if noAPI {
				cfg.API.Enabled = false
			}
			if noRelay {
				cfg.Relay.Enabled = false
			}
			if !cfg.API.Enabled && !cfg.Relay.Enabled {
				return errors.New("serve: api and relay are both disabled")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			osutils.Check().Log(a.logger)
			return a.withDesktop(func(d *desktop.Desktop) error {
				return serve(cmd.Context(), a.logger, cfg, d)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "HTTP/WebSocket listen address; enables the API (overrides api.listen)")
	f.StringVar(&relay, "relay", "", "UDP relay listen address; enables the relay (overrides relay.listen)")
	f.StringVar(&token, "token", "", "token required by the API and relay (overrides api.token)")
	f.BoolVar(&noAPI, "no-api", false, "disable the HTTP/WebSocket server")
	f.BoolVar(&noRelay, "no-relay", false, "disable the UDP relay")
	return cmd
}

// serve runs the enabled servers until ctx is cancelled or one of them fails.
func serve(ctx context.Context, logger *zap.Logger, cfg config.Config, d *desktop.Desktop) error {
	if ips, err := network.GetLocalIPs(); err == nil {
		logger.Info("local addresses", zap.Strings("ips", ips))
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.API.Enabled {
		if cfg.API.ManageFirewall {
			openFirewall(logger, "deskpilot API", cfg.API.Listen, "TCP")
		}
		srv := api.NewServer(d, cfg.API, api.WithLogger(logger.Named("api")), api.WithVersion(version))
		g.Go(func() error { return srv.Serve(ctx) })
	}
	if cfg.Relay.Enabled {
		if cfg.API.ManageFirewall {
			openFirewall(logger, "deskpilot relay", cfg.Relay.Listen, "UDP")
		}
		r := network.NewUDPReceiver(cfg.Relay.Listen, d, network.ReceiverOptions{
			Token:         cfg.API.Token,
			RatePerSecond: cfg.Relay.RatePerSecond,
			Burst:         cfg.Relay.Burst,
			PeerTimeout:   cfg.Relay.PeerTimeout,
			Logger:        logger.Named("relay"),
		})
		g.Go(func() error { return r.Serve(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openFirewall(logger *zap.Logger, name, addr, proto string) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		logger.Warn("firewall: bad listen address", zap.String("addr", addr), zap.Error(err))
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		logger.Warn("firewall: bad port", zap.String("addr", addr), zap.Error(err))
		return
	}
	if err := osutils.EnsureFirewallRule(name, port, proto, logger.Named("firewall")); err != nil {
		logger.Warn("firewall rule not applied", zap.Error(err))
	}
}
