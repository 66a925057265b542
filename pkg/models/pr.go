package models

// PRMetadata is the per-task, per-branch record pairing a task branch with
// its base and the last commit hash that passed verification. It is stored
// as JSON in the PR artifact directory and may be read from the working tree
// or from the blob committed on the task branch itself.
type PRMetadata struct {
	Branch          string `json:"branch"`
	Base            string `json:"base,omitempty"`
	LastVerifiedSHA string `json:"last_verified_sha,omitempty"`
}

// VerificationEntry is one transcript line produced by running a
// verification command against a specific commit.
type VerificationEntry struct {
	SHA     string `json:"sha"`
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Output  string `json:"output,omitempty"`
	At      string `json:"at"`
}
