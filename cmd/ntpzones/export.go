package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ntpzones/ntpzones/internal/export"
)

func newExportCmd(c *cli) *cobra.Command {
	var testOnly bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Build one snapshot and upload it to the configured SFTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := export.NewClientFromConfig(c.config.Export)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			if testOnly {
				if err := client.TestConnection(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Connection to %s OK\n", c.config.Export.Addr())
				return nil
			}

			app, err := NewApp(c.config, c.log)
			if err != nil {
				return err
			}

			exporter := export.NewExporter(client, app.Snapshot, c.log)
			written, err := exporter.Export(contextOrBackground(cmd.Context()))
			if err != nil {
				return err
			}
			for _, name := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&testOnly, "test", false, "only check connectivity and credentials")
	return cmd
}
