package model

// ArtifactType tags the kind of evidence submitted for analysis.
type ArtifactType string

const (
	ArtifactURL  ArtifactType = "url"
	ArtifactText ArtifactType = "text"
	ArtifactFile ArtifactType = "file"
)

// Artifact is one unit of user-submitted evidence to be analyzed.
type Artifact struct {
	Type     ArtifactType      `json:"type"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Valid returns true if the artifact type is a known value.
func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactURL, ArtifactText, ArtifactFile:
		return true
	default:
		return false
	}
}
