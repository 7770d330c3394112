package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"camerabridge/internal/config"
	"camerabridge/internal/core/bootstrap"
	"camerabridge/internal/logging"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Inspect the host and report what discovery can use",
	Long: `Probe the container runtime, private subnets, nmap, multicast and the
storage directory, then print the discovery settings serve would use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		res := bootstrap.Run(cmd.Context(), cfg, nil)

		out := cmd.OutOrStdout()
		if doctorJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tPROPERTY\tVALUE\tCONFIDENCE\tMETHOD")
		for _, e := range res.Evidence {
			fmt.Fprintf(tw, "%s\t%s\t%v\t%.2f\t%s\n", e.Category, e.Property, e.Value, e.Confidence, e.Method)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		rec := res.Recommendation
		fmt.Fprintf(out, "\nsweep: %s via %s\n", rec.SweepSubnet, rec.SweepEngine)
		for _, r := range rec.Reasons {
			fmt.Fprintf(out, "  ok: %s\n", r)
		}
		for _, w := range rec.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the full result as JSON")
	rootCmd.AddCommand(doctorCmd)
}

// preflight runs the host probes and applies their sweep settings to cfg
func preflight(ctx context.Context, cfg *config.Config) {
	bootstrap.Run(ctx, cfg, logging.Named("bootstrap")).Apply(cfg)
}
