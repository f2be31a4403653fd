package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Feaskye/SkyeAI-sub001/internal/tool"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect tool catalogues",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a tool catalogue and list its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read catalogue: %w", err)
			}
			ds, err := tool.ParseDescriptors(data)
			if err != nil {
				return err
			}
			return printDescriptors(cmd, ds)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "defaults",
		Short: "List the built-in tool catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printDescriptors(cmd, tool.DefaultDescriptors())
		},
	})
	return cmd
}

func printDescriptors(cmd *cobra.Command, ds []tool.Descriptor) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tTYPE\tENABLED\tENDPOINT")
	for _, d := range ds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", d.Name, d.VersionOrDefault(), d.Type, d.IsEnabled(), d.Endpoint)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d tools\n", len(ds))
	return nil
}
