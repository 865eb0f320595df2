package identify

import (
	"strings"

	"github.com/conorfennell/leafcare/internal/domain"
)

const identifyPrompt = `You are a botanist. Identify the plant and reply with a single JSON object, no prose:
{
  "commonName": string,
  "scientificName": string,
  "family": string,
  "genus": string,
  "description": string,
  "confidence": number between 0 and 1,
  "care": {
    "watering": string, "light": string, "temperature": string, "humidity": string,
    "soil": string, "fertilizer": string, "pruning": string, "repotting": string
  },
  "commonProblems": [{"name": string, "symptoms": string, "solution": string}],
  "similarPlants": [{"name": string, "scientificName": string, "difference": string}]
}
List at most three common problems and three similar plants.`

const diagnosePrompt = `You are a plant pathologist. Assess the plant's health and reply with a single JSON object, no prose:
{
  "status": "Healthy" | "Warning" | "Critical",
  "summary": string,
  "issues": [{"name": string, "description": string, "treatment": string}],
  "recommendations": [string]
}
Use an empty issues list for a healthy plant.`

func chatPrompt(plantContext string) string {
	var b strings.Builder
	b.WriteString("You are a friendly plant-care assistant. Answer briefly and practically.")
	if plantContext = strings.TrimSpace(plantContext); plantContext != "" {
		b.WriteString("\nThe user is asking about this plant:\n")
		b.WriteString(plantContext)
	}
	return b.String()
}

func normalizeSeverity(s domain.Severity) domain.Severity {
	switch {
	case strings.EqualFold(string(s), string(domain.Healthy)):
		return domain.Healthy
	case strings.EqualFold(string(s), string(domain.Critical)):
		return domain.Critical
	default:
		return domain.Warning
	}
}
