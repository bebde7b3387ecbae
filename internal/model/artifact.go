package model

// ArtifactSource names where an artifact's payload originates.
type ArtifactSource string

const (
	ArtifactFile         ArtifactSource = "file"
	ArtifactURL          ArtifactSource = "url"
	ArtifactConversation ArtifactSource = "conversation"
	ArtifactPrompt       ArtifactSource = "prompt"
	ArtifactLog          ArtifactSource = "log"
	ArtifactReference    ArtifactSource = "reference"
)

// Artifact is a content-addressed (for file sources) or by-reference (for
// URL sources) payload that a task can cite as evidence.
type Artifact struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"task_id"`
	Source     ArtifactSource `json:"source"`
	PayloadRef string         `json:"payload_ref"`
	Title      string         `json:"title,omitempty"`
	Summary    string         `json:"summary,omitempty"`
	Sensitive  bool           `json:"sensitive"`
	Role       string         `json:"role,omitempty"`
	CreatedAt  string         `json:"created_at"`
	Actor      string         `json:"actor"`
}
