package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scamlens/scamlens/internal/model"
)

var (
	investigateUser     string
	investigateTier     string
	investigateType     string
	investigateURLs     []string
	investigateTexts    []string
	investigateFiles    []string
	investigateContext  string
	investigatePriority int
)

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Run a single investigation from the command line",
	Long: `Runs one investigation synchronously and prints the result as JSON.
Artifacts are passed via repeated --url, --text, and --file flags; file
arguments are read from disk and submitted as file artifacts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		artifacts, err := collectArtifacts()
		if err != nil {
			return err
		}
		if len(artifacts) == 0 {
			return eris.New("at least one of --url, --text, or --file is required")
		}

		req := model.InvestigationRequest{
			ID:        uuid.NewString(),
			UserID:    investigateUser,
			Tier:      model.Tier(investigateTier),
			Type:      model.InvestigationType(investigateType),
			Artifacts: artifacts,
			Context:   investigateContext,
			Priority:  investigatePriority,
			CreatedAt: time.Now().UTC(),
		}

		env, err := initCore(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		start := time.Now()
		result, err := env.Engine.Conduct(cmd.Context(), req)
		if err != nil {
			return eris.Wrap(err, "investigation")
		}

		zap.L().Info("investigation complete",
			zap.String("id", result.ID),
			zap.String("threat_level", string(result.ThreatLevel)),
			zap.Float64("confidence", result.Confidence),
			zap.Float64("cost_usd", result.CostUSD),
			zap.Duration("elapsed", time.Since(start)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func collectArtifacts() ([]model.Artifact, error) {
	var artifacts []model.Artifact
	for _, u := range investigateURLs {
		artifacts = append(artifacts, model.Artifact{Type: model.ArtifactURL, Content: u})
	}
	for _, t := range investigateTexts {
		artifacts = append(artifacts, model.Artifact{Type: model.ArtifactText, Content: t})
	}
	for _, path := range investigateFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read artifact file %s", path)
		}
		artifacts = append(artifacts, model.Artifact{
			Type:     model.ArtifactFile,
			Content:  string(data),
			Metadata: map[string]string{"filename": path},
		})
	}
	return artifacts, nil
}

func init() {
	investigateCmd.Flags().StringVar(&investigateUser, "user", "cli", "user ID to attribute the investigation to")
	investigateCmd.Flags().StringVar(&investigateTier, "tier", string(model.TierBasic), "subscription tier (basic, professional, enterprise, intelligence)")
	investigateCmd.Flags().StringVar(&investigateType, "type", string(model.TypeQuickScan), "investigation type (quick-scan, comprehensive, deep-analysis)")
	investigateCmd.Flags().StringArrayVar(&investigateURLs, "url", nil, "URL artifact (repeatable)")
	investigateCmd.Flags().StringArrayVar(&investigateTexts, "text", nil, "text artifact (repeatable)")
	investigateCmd.Flags().StringArrayVar(&investigateFiles, "file", nil, "file artifact path (repeatable)")
	investigateCmd.Flags().StringVar(&investigateContext, "context", "", "free-form context for the analysis")
	investigateCmd.Flags().IntVar(&investigatePriority, "priority", 0, "scheduling priority hint")
	rootCmd.AddCommand(investigateCmd)
}
