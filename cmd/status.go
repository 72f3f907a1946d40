package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scamlens/scamlens/internal/model"
	"github.com/scamlens/scamlens/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status <investigation-id>",
	Short: "Report the stored status of an investigation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := st.GetInvestigation(cmd.Context(), id)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				return eris.Errorf("investigation %s not found (still running investigations are tracked by the serve process)", id)
			}
			return err
		}

		out := struct {
			ID          string            `json:"id"`
			Status      string            `json:"status"`
			ThreatLevel model.ThreatLevel `json:"threat_level"`
			Confidence  float64           `json:"confidence"`
			CostUSD     float64           `json:"cost_usd"`
			CompletedAt string            `json:"completed_at"`
		}{
			ID:          result.ID,
			Status:      string(model.StatusComplete),
			ThreatLevel: result.ThreatLevel,
			Confidence:  result.Confidence,
			CostUSD:     result.CostUSD,
			CompletedAt: result.CompletedAt.Format(time.RFC3339),
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
