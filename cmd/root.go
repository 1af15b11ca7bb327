package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deskpilot/internal/autostart"
	"deskpilot/internal/config"
	"deskpilot/internal/desktop"
	"deskpilot/internal/input"
	"deskpilot/internal/observability"
	"deskpilot/internal/screen"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

// app carries state shared by all commands.
type app struct {
	cfgFile string
	mgr     *config.Manager
	cfg     config.Config
	logger  *zap.Logger

	newBackend   func() (input.Backend, error)
	grabber      screen.Grabber
	newInstaller func(autostart.Entry) (autostart.Installer, error)
}

func newApp() *app {
	return &app{
		logger:       zap.NewNop(),
		newBackend:   input.New,
		grabber:      screen.DisplayGrabber{},
		newInstaller: autostart.New,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "deskpilot",
		Short:         "Desktop pointer and keyboard automation.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is the per-user config path)")
	root.SetVersionTemplate("deskpilot {{.Version}}\n")

	root.AddCommand(
		newPosCmd(a),
		newScreenSizeCmd(a),
		newMoveCmd(a),
		newClickCmd(a),
		newToggleCmd(a),
		newTypeCmd(a),
		newTapCmd(a),
		newKeyCodeCmd(a),
		newCaptureCmd(a),
		newNudgeCmd(a),
		newCheckCmd(a),
		newServeCmd(a),
		newRemoteCmd(a),
		newRelayCmd(a),
		newDiscoverCmd(a),
		newConfigCmd(a),
		newAutostartCmd(a),
		newVersionCmd(),
	)
	return root
}

// init loads configuration and sets up logging.
func (a *app) init() error {
	mgr, err := config.NewManager(a.cfgFile)
	if err == nil {
		err = mgr.Load()
	}
	if err != nil {
		observability.InitializeLogger(config.Default().Logger)
		a.logger = observability.GetLogger()
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	a.mgr = mgr
	a.cfg = mgr.Get()

	observability.InitializeLogger(a.cfg.Logger)
	a.logger = observability.GetLogger()
	a.logger.Debug("configuration loaded", zap.String("path", mgr.Path()), zap.String("version", version))
	return nil
}

// openDesktop creates a desktop over a fresh platform backend.
func (a *app) openDesktop() (*desktop.Desktop, error) {
	b, err := a.newBackend()
	if err != nil {
		return nil, fmt.Errorf("open input backend: %w", err)
	}
	capturer := screen.NewCapturer(a.grabber, a.cfg.Capture.MaxBytes, a.logger.Named("screen"))
	return desktop.FromConfig(b, a.cfg, a.logger.Named("desktop"), desktop.WithCapturer(capturer)), nil
}

// withDesktop runs fn against a desktop and closes it afterwards.
func (a *app) withDesktop(fn func(d *desktop.Desktop) error) (err error) {
	d, err := a.openDesktop()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(d)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deskpilot %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
