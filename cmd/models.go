package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scamlens/scamlens/internal/model"
)

var modelsTier string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available to a subscription tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		tier := model.Tier(modelsTier)
		if !tier.Valid() {
			return eris.Errorf("unknown tier: %s", modelsTier)
		}

		reg, err := initRegistry()
		if err != nil {
			return err
		}

		names, err := reg.AvailableFor(tier)
		if err != nil {
			return eris.Wrapf(err, "models for tier %s", tier)
		}

		type row struct {
			Name         string   `json:"name"`
			Family       string   `json:"family"`
			Capabilities []string `json:"capabilities"`
			CostPerToken float64  `json:"cost_per_token"`
		}
		rows := make([]row, 0, len(names))
		for _, name := range names {
			mc, err := reg.Get(name)
			if err != nil {
				return err
			}
			rows = append(rows, row{
				Name:         mc.Name,
				Family:       string(mc.Family),
				Capabilities: mc.Capabilities,
				CostPerToken: mc.CostPerToken,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	},
}

func init() {
	modelsCmd.Flags().StringVar(&modelsTier, "tier", string(model.TierBasic), "subscription tier")
	rootCmd.AddCommand(modelsCmd)
}
