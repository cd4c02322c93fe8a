package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gyrodesk/internal/autostart"
)

func newAutostartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "autostart [enable|disable|status]",
		Short:     "Start gyrodesk with the tray icon at login",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"enable", "disable", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := autostart.New()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch args[0] {
			case "enable":
				if err := m.Enable("serve", "--tray"); err != nil {
					return err
				}
				fmt.Fprintf(out, "Autostart enabled (%s)\n", m.Path())
			case "disable":
				if err := m.Disable(); err != nil {
					return err
				}
				fmt.Fprintln(out, "Autostart disabled")
			case "status":
				if m.IsEnabled() {
					fmt.Fprintf(out, "Autostart is enabled (%s)\n", m.Path())
				} else {
					fmt.Fprintln(out, "Autostart is disabled")
				}
			default:
				return fmt.Errorf("unknown action %q, expected enable, disable or status", args[0])
			}
			return nil
		},
	}
	return cmd
}
