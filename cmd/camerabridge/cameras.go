package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"camerabridge/internal/codec"
	"camerabridge/internal/service"
)

var inventoryFormat string

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List, export and import registered cameras",
}

var camerasListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the registry as a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		reg, store, err := openRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tCHANNEL\tSTATUS\tMODEL")
		for _, d := range reg.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", d.ID, d.Name, d.Address, d.Channel, d.Status, d.Model)
		}
		return tw.Flush()
	},
}

var camerasExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the registry as an inventory (stdout when no file is given)",
	Example: `  # go2rtc streams section for a static go2rtc.yaml
  camerabridge cameras export --format go2rtc > streams.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := codec.ForFormat(inventoryFormat)
		if err != nil {
			return err
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		reg, store, err := openRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		var w io.Writer = cmd.OutOrStdout()
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[0], err)
			}
			defer f.Close()
			w = f
		}
		return c.Export(reg.List(), w)
	},
}

var camerasImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add every camera from an inventory file",
	Long: `Add every camera from an inventory file to the registry. Cameras whose id or
address/channel is already registered are skipped and reported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		reg, store, err := openRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		svc := service.NewCameraService(reg, nil, nil, nil, nil)
		res, err := importInventory(cmd.Context(), svc, args[0], inventoryFormat)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var camerasCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe every camera once and record online/offline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		reg, store, err := openRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		sum, err := newHealthMonitor(cfg, reg, nil).Check(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked %d: %d online, %d offline, %d changed\n",
			sum.Checked, sum.Online, sum.Offline, sum.Changed)
		return nil
	},
}

func init() {
	camerasCmd.PersistentFlags().StringVarP(&inventoryFormat, "format", "f", "yaml", fmt.Sprintf("Inventory format %v", codec.Formats()))

	camerasCmd.AddCommand(camerasListCmd)
	camerasCmd.AddCommand(camerasExportCmd)
	camerasCmd.AddCommand(camerasImportCmd)
	camerasCmd.AddCommand(camerasCheckCmd)
	rootCmd.AddCommand(camerasCmd)
}

// importInventory parses path with the named codec and adds its cameras
func importInventory(ctx context.Context, svc *service.CameraService, path, format string) (service.ImportResult, error) {
	c, err := codec.ForFormat(format)
	if err != nil {
		return service.ImportResult{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return service.ImportResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	devices, err := c.Parse(f)
	if err != nil {
		return service.ImportResult{}, fmt.Errorf("%s: %w", path, err)
	}
	return svc.ImportCameras(ctx, devices)
}
