// internal/insight/prompt.go
package insight

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/sentinelops/internal/types"
	"github.com/user/sentinelops/pkg/llm"
)

const basePrompt = `You are an operations summary assistant for a billing and observability system.

Your role:
- Summarize what happened during the given time window for an operations engineer.
- Translate aggregated signals into a short, neutral operational narrative.

Strict rules:
- DO NOT compute or infer new numbers.
- DO NOT introduce causes, root analysis, or solutions.
- DO NOT give instructions, recommendations, or urgency.
- DO NOT exaggerate risk or certainty.

Style:
- Calm, factual, observational.
- Prefer phrases like "was observed", "remained stable", "appears".

Output constraints:
- 3 to 5 sentences.
- One short paragraph.
- No bullet points, no titles, no markdown.

Return ONLY the summary text.
`

const toneLow = `Tone adjustment (LOW):
- Treat signals as informational.
- Use calm, lightweight language.
- Emphasize stability and normal ranges.
- Avoid risk-focused wording.
`

const toneMedium = `Tone adjustment (MEDIUM):
- Acknowledge noticeable patterns without alarm.
- Use balanced language suggesting it is worth monitoring.
- Avoid urgency or directives.
`

const toneHigh = `Tone adjustment (HIGH):
- Clearly state that high-severity signals were observed.
- Keep a composed, factual tone.
- Do not soften the presence of critical signals, but do not add urgency.
- Focus on clarity over reassurance.
`

// Tone returns the tone block for the snapshot's highest severity. Unknown
// or empty severities get the low tone.
func Tone(sev types.Severity) string {
	switch types.Severity(strings.ToLower(string(sev))) {
	case types.SeverityHigh:
		return toneHigh
	case types.SeverityMedium:
		return toneMedium
	default:
		return toneLow
	}
}

// BuildMessages renders the chat prompt for snap. It depends on nothing but
// its input.
func BuildMessages(snap *Snapshot) ([]llm.Message, error) {
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return []llm.Message{
		{Role: "system", Content: basePrompt + "\n" + Tone(snap.MaxSeverity)},
		{Role: "user", Content: "Aggregated operational snapshot:\n" + string(payload)},
	}, nil
}
