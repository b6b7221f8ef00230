package generation

import (
	"strings"

	"variantforge/internal/domain"
)

func buildGenerationPrompt(plan *domain.VariantPlan, sourceHTML string) string {
	var sb strings.Builder
	sb.WriteString("You are reworking an existing HTML screen into an alternative implementation.\n")
	sb.WriteString("Apply the following modification strategy and return ONLY the complete HTML document, no commentary.\n\n")
	sb.WriteString("Strategy: " + plan.Title + "\n")
	if plan.Description != "" {
		sb.WriteString("Description: " + plan.Description + "\n")
	}
	if len(plan.KeyChanges) > 0 {
		sb.WriteString("Key changes:\n")
		for _, kc := range plan.KeyChanges {
			sb.WriteString("- " + kc + "\n")
		}
	}
	if plan.StyleNotes != "" {
		sb.WriteString("Style notes: " + plan.StyleNotes + "\n")
	}
	sb.WriteString("\n[SOURCE HTML]\n")
	sb.WriteString(sourceHTML)
	return sb.String()
}

func buildIterationPrompt(currentHTML, instruction string) string {
	var sb strings.Builder
	sb.WriteString("Refine the following HTML document per the instruction and return ONLY the complete updated HTML document, no commentary.\n\n")
	sb.WriteString("Instruction: " + instruction + "\n")
	sb.WriteString("\n[CURRENT HTML]\n")
	sb.WriteString(currentHTML)
	return sb.String()
}
