package diagnosis

import "github.com/abhisek/skillprobe/internal/llm"

// AnalysisSchema defines the JSON shape the detective must return. Ranges
// live in the descriptions only; Analysis.normalize clamps whatever comes
// back.
var AnalysisSchema = &llm.Schema{
	Name:        "learner-analysis",
	Description: "Assessment of a learner's latest reply plus the next message to send them",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_correct": map[string]any{
				"type":        "boolean",
				"description": "Whether the latest reply is factually correct",
			},
			"reasoning_score": map[string]any{
				"type":        "integer",
				"description": "Quality of the learner's reasoning, 1 (none) to 5 (rigorous)",
			},
			"misconception": map[string]any{
				"type":        "string",
				"description": "Short name of the misconception shown, or an empty string",
			},
			"estimated_level": map[string]any{
				"type":        "integer",
				"description": "Estimated skill level on the 1-5 rubric",
			},
			"confidence": map[string]any{
				"type":        "number",
				"description": "How sure you are of estimated_level, 0.0 to 1.0",
			},
			"next_message": map[string]any{
				"type":        "string",
				"description": "The literal text the learner will read next",
			},
		},
		"required": []any{
			"is_correct", "reasoning_score", "misconception",
			"estimated_level", "confidence", "next_message",
		},
		"additionalProperties": false,
	},
}
