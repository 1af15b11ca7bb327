package main

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deskpilot/internal/desktop"
	"deskpilot/internal/input"
	"deskpilot/internal/osutils"
	"deskpilot/internal/screen"
)

func parsePoint(args []string) (input.Point, error) {
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return input.Point{}, fmt.Errorf("invalid x %q", args[0])
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return input.Point{}, fmt.Errorf("invalid y %q", args[1])
	}
	return input.Point{X: x, Y: y}, nil
}

// parseRect parses "x,y,w,h".
func parseRect(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("invalid rect %q, want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid rect %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid rect %q: size must be positive", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

func newPosCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pos",
		Short: "Print the pointer position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDesktop(func(d *desktop.Desktop) error {
				p, err := d.Position()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %d\n", p.X, p.Y)
				return nil
			})
		},
	}
}

func newScreenSizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "screen-size",
		Short: "Print the primary display size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDesktop(func(d *desktop.Desktop) error {
				s, err := d.ScreenSize()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%dx%d\n", s.Width, s.Height)
				return nil
			})
		},
	}
}

func newMoveCmd(a *app) *cobra.Command {
	var smooth bool
	cmd := &cobra.Command{
		Use:   "move X Y",
		Short: "Move the pointer",
		Long: "Move the pointer to X Y. With --smooth the pointer glides along a\n" +
			"human-like path and the move fails if the path leaves the screen.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePoint(args)
			if err != nil {
				return err
			}
			return a.withDesktop(func(d *desktop.Desktop) error {
				if !smooth {
					return d.Move(p)
				}
				stats, err := d.SmoothMove(cmd.Context(), p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %d (%d steps in %s)\n", stats.End.X, stats.End.Y, stats.Steps, stats.Elapsed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&smooth, "smooth", "s", false, "glide along a human-like path")
	return cmd
}

func newClickCmd(a *app) *cobra.Command {
	var button string
	var double bool
	cmd := &cobra.Command{
		Use:   "click",
		Short: "Click a mouse button",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := input.ParseButton(button)
			if err != nil {
				return err
			}
			return a.withDesktop(func(d *desktop.Desktop) error {
				if err := d.Click(b); err != nil || !double {
					return err
				}
				return d.Click(b)
			})
		},
	}
	cmd.Flags().StringVarP(&button, "button", "b", "left", "left, right or middle")
	cmd.Flags().BoolVar(&double, "double", false, "click twice")
	return cmd
}

func newToggleCmd(a *app) *cobra.Command {
	var button string
	var up bool
	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Press (or with --up release) a mouse button",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := input.ParseButton(button)
			if err != nil {
				return err
			}
			return a.withDesktop(func(d *desktop.Desktop) error {
				return d.Toggle(!up, b)
			})
		},
	}
	cmd.Flags().StringVarP(&button, "button", "b", "left", "left, right or middle")
	cmd.Flags().BoolVar(&up, "up", false, "release instead of press")
	return cmd
}

func newTypeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "type TEXT...",
		Short: "Type text on the active keyboard layout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDesktop(func(d *desktop.Desktop) error {
				return d.TypeString(cmd.Context(), strings.Join(args, " "))
			})
		},
	}
}

func newTapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "tap CHORD",
		Short:   "Press a key chord",
		Example: "  deskpilot tap Ctrl+Shift+T\n  deskpilot tap Enter",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDesktop(func(d *desktop.Desktop) error {
				return d.Tap(args[0])
			})
		},
	}
}

func newKeyCodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keycode CHAR",
		Short: "Print the platform key code that produces CHAR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if utf8.RuneCountInString(args[0]) != 1 {
				return errors.New("keycode takes a single character")
			}
			ch, _ := utf8.DecodeRuneInString(args[0])
			return a.withDesktop(func(d *desktop.Desktop) error {
				e, ok := d.KeyCode(ch)
				if !ok {
					return fmt.Errorf("%w: %q", input.ErrUnsupportedKey, ch)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "code=%d shift=%t\n", e.Code, e.Shift)
				return nil
			})
		},
	}
}

func newCaptureCmd(a *app) *cobra.Command {
	var out, rectFlag string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Save a screenshot as PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rect image.Rectangle
			if rectFlag != "" {
				var err error
				if rect, err = parseRect(rectFlag); err != nil {
					return err
				}
			}
			return a.withDesktop(func(d *desktop.Desktop) error {
				bmp, err := d.Capture(rect)
				if err != nil {
					return err
				}
				defer func() { _ = bmp.Destroy() }()

				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := screen.EncodePNG(f, bmp); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				a.logger.Info("capture saved", zap.String("file", out), zap.Int("width", bmp.Width()), zap.Int("height", bmp.Height()))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "capture.png", "output file")
	cmd.Flags().StringVar(&rectFlag, "rect", "", "region as x,y,w,h (default whole display)")
	return cmd
}

func newNudgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "nudge",
		Short: "Move the pointer a pixel and back to wake the display",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDesktop(func(d *desktop.Desktop) error { return d.Nudge() })
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether this process can inject input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, osutils.Check())
			return a.withDesktop(func(d *desktop.Desktop) error {
				s, err := d.ScreenSize()
				if err != nil {
					return err
				}
				p, err := d.Position()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "screen=%dx%d pointer=%d,%d\n", s.Width, s.Height, p.X, p.Y)
				return nil
			})
		},
	}
}
