package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deskpilot/internal/autostart"
	"deskpilot/internal/network"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan the local /24 network for deskpilot servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.logger.Info("scanning LAN", zap.Int("port", port))
			hosts, err := network.ScanLAN(cmd.Context(), port)
			if err != nil {
				return err
			}
			if len(hosts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no servers found")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ADDRESS\tVERSION")
			for _, h := range hosts {
				fmt.Fprintf(tw, "%s:%d\t%s\n", h.IP, h.Port, h.Version)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 18080, "API port to scan")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), a.mgr.Path())
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the current settings (defaults plus overrides) to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.mgr.Path()
			if _, err := os.Stat(p); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", p)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := a.mgr.Save(); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	cmd.AddCommand(path, initCmd)
	return cmd
}

func newAutostartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Run \"deskpilot serve\" when the current user logs in",
	}

	installer := func() (autostart.Installer, error) {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		e := autostart.Entry{
			Label: "dev.deskpilot.agent",
			Name:  "deskpilot",
			Exec:  exe,
			Args:  []string{"serve"},
		}
		if a.cfgFile != "" {
			e.Args = append(e.Args, "--config", a.mgr.Path())
		}
		return a.newInstaller(e)
	}

	enable := &cobra.Command{
		Use:   "enable",
		Short: "Install the login item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := installer()
			if err != nil {
				return err
			}
			if err := in.Enable(); err != nil {
				return err
			}
			a.logger.Info("autostart enabled", zap.String("location", in.Location()))
			fmt.Fprintln(cmd.OutOrStdout(), in.Location())
			return nil
		},
	}

	disable := &cobra.Command{
		Use:   "disable",
		Short: "Remove the login item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := installer()
			if err != nil {
				return err
			}
			return in.Disable()
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether the login item is installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := installer()
			if err != nil {
				return err
			}
			on, err := in.Enabled()
			if err != nil {
				return err
			}
			state := "disabled"
			if on {
				state = "enabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", state, in.Location())
			return nil
		},
	}

	cmd.AddCommand(enable, disable, status)
	return cmd
}
