package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deskpilot/internal/input"
	"deskpilot/internal/keycode"
	"deskpilot/internal/network"
	"deskpilot/internal/protocol"
)

const remoteTimeout = 30 * time.Second

func newRemoteCmd(a *app) *cobra.Command {
	var addr, token string
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Control a deskpilot server over WebSocket",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:18080", "server address host:port")
	cmd.PersistentFlags().StringVar(&token, "token", "", "API token (default api.token from config)")

	dial := func(cmd *cobra.Command, opts ...network.WSOption) (*network.WSClient, error) {
		tok := token
		if tok == "" {
			tok = a.cfg.API.Token
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
		defer cancel()
		return network.DialWS(ctx, addr, tok, append(opts, network.WithWSLogger(a.logger.Named("ws")))...)
	}
	call := func(cmd *cobra.Command, t protocol.MessageType, payload any) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
		defer cancel()
		res, err := c.Call(ctx, t, payload)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	}

	pos := &cobra.Command{
		Use:   "pos",
		Short: "Print the remote pointer position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, protocol.TypePosition, nil)
		},
	}

	var smooth bool
	move := &cobra.Command{
		Use:   "move X Y",
		Short: "Move the remote pointer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePoint(args)
			if err != nil {
				return err
			}
			return call(cmd, protocol.TypeMove, protocol.MovePayload{X: p.X, Y: p.Y, Smooth: smooth})
		},
	}
	move.Flags().BoolVarP(&smooth, "smooth", "s", false, "glide along a human-like path")

	var button string
	click := &cobra.Command{
		Use:   "click",
		Short: "Click a remote mouse button",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, protocol.TypeClick, protocol.ButtonPayload{Button: button})
		},
	}
	click.Flags().StringVarP(&button, "button", "b", "left", "left, right or middle")

	var toggleButton string
	var up bool
	toggle := &cobra.Command{
		Use:   "toggle",
		Short: "Press (or with --up release) a remote mouse button",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, protocol.TypeToggle, protocol.ButtonPayload{Button: toggleButton, Down: !up})
		},
	}
	toggle.Flags().StringVarP(&toggleButton, "button", "b", "left", "left, right or middle")
	toggle.Flags().BoolVar(&up, "up", false, "release instead of press")

	typ := &cobra.Command{
		Use:   "type TEXT...",
		Short: "Type text on the remote desktop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, protocol.TypeType, protocol.TextPayload{Text: strings.Join(args, " ")})
		},
	}

	tap := &cobra.Command{
		Use:   "tap CHORD",
		Short: "Press a key chord on the remote desktop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, protocol.TypeTap, protocol.TapPayload{Chord: args[0]})
		},
	}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Print operations performed on the remote desktop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c, err := dial(cmd, network.WithEventHandler(func(ev protocol.EventPayload) {
				printEvent(out, ev)
			}))
			if err != nil {
				return err
			}
			defer c.Close()
			a.logger.Info("watching", zap.String("addr", addr))
			select {
			case <-cmd.Context().Done():
			case <-c.Done():
			}
			return nil
		},
	}

	cmd.AddCommand(pos, move, click, toggle, typ, tap, watch)
	return cmd
}

func printResult(w io.Writer, res protocol.ResultPayload) {
	switch {
	case res.X != nil && res.Y != nil && res.Steps > 0:
		fmt.Fprintf(w, "%d %d (%d steps)\n", *res.X, *res.Y, res.Steps)
	case res.X != nil && res.Y != nil:
		fmt.Fprintf(w, "%d %d\n", *res.X, *res.Y)
	default:
		fmt.Fprintln(w, "ok")
	}
}

func printEvent(w io.Writer, ev protocol.EventPayload) {
	var b strings.Builder
	b.WriteString(ev.Op)
	if ev.X != nil && ev.Y != nil {
		fmt.Fprintf(&b, " %d %d", *ev.X, *ev.Y)
	}
	if ev.Error != "" {
		b.WriteString(" error: ")
		b.WriteString(ev.Error)
	}
	fmt.Fprintln(w, b.String())
}

func newRelayCmd(a *app) *cobra.Command {
	var addr, token string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Send input to a deskpilot server over the UDP relay",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:18081", "relay address host:port")
	cmd.PersistentFlags().StringVar(&token, "token", "", "token the relay expects (default api.token from config)")

	send := func(cmd *cobra.Command, fn func(s *network.UDPSender) error) error {
		tok := token
		if tok == "" {
			tok = a.cfg.API.Token
		}
		s := network.NewUDPSender(addr, tok, a.logger.Named("relay"))
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := s.Connect(ctx); err != nil {
			return err
		}
		defer s.Close()
		return fn(s)
	}

	var smooth bool
	move := &cobra.Command{
		Use:   "move X Y",
		Short: "Move the remote pointer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePoint(args)
			if err != nil {
				return err
			}
			return send(cmd, func(s *network.UDPSender) error {
				if smooth {
					return s.SmoothMove(p)
				}
				return s.Move(p)
			})
		},
	}
	move.Flags().BoolVarP(&smooth, "smooth", "s", false, "glide along a human-like path")

	var button string
	click := &cobra.Command{
		Use:   "click",
		Short: "Click a remote mouse button",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := input.ParseButton(button)
			if err != nil {
				return err
			}
			return send(cmd, func(s *network.UDPSender) error { return s.Click(b) })
		},
	}
	click.Flags().StringVarP(&button, "button", "b", "left", "left, right or middle")

	var down, up bool
	key := &cobra.Command{
		Use:   "key CODE",
		Short: "Press and release (or with --down/--up, press or release) a raw key code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid key code %q", args[0])
			}
			code := keycode.Code(n)
			return send(cmd, func(s *network.UDPSender) error {
				if !up {
					if err := s.PostKey(code, true); err != nil {
						return err
					}
				}
				if down {
					return nil
				}
				return s.PostKey(code, false)
			})
		},
	}
	key.Flags().BoolVar(&down, "down", false, "press only")
	key.Flags().BoolVar(&up, "up", false, "release only")
	key.MarkFlagsMutuallyExclusive("down", "up")

	cmd.AddCommand(move, click, key)
	return cmd
}
