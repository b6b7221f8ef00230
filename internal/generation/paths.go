package generation

import "fmt"

// Artifact paths are deterministic in their inputs so a retried generation
// overwrites its own blob and iterations never collide with each other.
func variantArtifactPath(sessionID string, variantIndex int) string {
	return fmt.Sprintf("sessions/%s/variants/%d/variant.html", sessionID, variantIndex)
}

func iterationArtifactPath(sessionID string, variantIndex, iterationNumber int) string {
	return fmt.Sprintf("sessions/%s/variants/%d/iterations/%d.html", sessionID, variantIndex, iterationNumber)
}

func revertArtifactPath(sessionID string, variantIndex int, nano int64) string {
	return fmt.Sprintf("sessions/%s/variants/%d/reverts/%d.html", sessionID, variantIndex, nano)
}
