package investigation

import (
	"fmt"
	"strings"

	"github.com/scamlens/scamlens/internal/model"
)

// SystemPrompt instructs analysis models on the task and response envelope.
const SystemPrompt = `You are a fraud and scam analyst. Assess the submitted ` +
	`evidence for indicators of fraud, phishing, or scam activity. Respond ` +
	`with a single JSON object: {"confidence": <0.0-1.0 likelihood the ` +
	`evidence is fraudulent>, "analysis": "<your assessment>"}.`

// artifactPrompt renders one artifact into an analysis prompt.
func artifactPrompt(req model.InvestigationRequest, art model.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %s for fraud or scam indicators.\n\n", art.Type)
	if req.Context != "" {
		fmt.Fprintf(&b, "Submitter context: %s\n\n", req.Context)
	}
	for k, v := range art.Metadata {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	fmt.Fprintf(&b, "\nEvidence:\n%s\n", art.Content)
	return b.String()
}

// synthesisPrompt folds per-artifact findings into a second-pass request for
// an overall assessment.
func synthesisPrompt(req model.InvestigationRequest, findings []model.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Synthesize an overall fraud assessment from %d per-artifact analyses.\n\n", len(findings))
	if req.Context != "" {
		fmt.Fprintf(&b, "Submitter context: %s\n\n", req.Context)
	}
	for i, f := range findings {
		fmt.Fprintf(&b, "Analysis %d (%s, confidence %.2f):\n%s\n\n",
			i+1, f.Artifact.Type, f.Confidence, f.Analysis)
	}
	b.WriteString("Weigh the analyses together and report the combined verdict.")
	return b.String()
}
