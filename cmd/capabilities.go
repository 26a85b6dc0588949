package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"whsync/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Print the capability catalog the service would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		dir, _ := cmd.Flags().GetString("config-dir")
		if dir == "" {
			dir = os.Getenv("CONFIG_DIR")
		}
		if dir == "" {
			dir = "./configs"
		}

		registry, err := config.NewLoader(dir, zap.NewNop()).LoadCapabilities()
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(registry.List())
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATA TYPE\tLABEL\tUNIT\tOVERRIDABLE\tSTANDARD")
		for _, c := range registry.List() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", c.DataType, c.Label, c.Unit, c.Overridable, c.Standard)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)
	capabilitiesCmd.Flags().Bool("json", false, "Print the catalog as JSON")
}
