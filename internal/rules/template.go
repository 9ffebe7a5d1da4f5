// internal/rules/template.go
package rules

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/user/sentinelops/internal/types"
)

// NotificationText renders the chat message announcing a new anomaly.
func NotificationText(a *types.Anomaly) string {
	lines := []string{
		"🚨 *SentinelOps Anomaly Detected*",
		fmt.Sprintf("*Rule:* %s", a.RuleCode),
		fmt.Sprintf("*Severity:* %s", a.Severity),
		fmt.Sprintf("*Status:* %s", a.Status),
	}
	if a.WindowStart != nil && a.WindowEnd != nil {
		lines = append(lines, fmt.Sprintf("*Window:* %s ~ %s",
			a.WindowStart.UTC().Format(time.RFC3339), a.WindowEnd.UTC().Format(time.RFC3339)))
	}
	if len(a.Evidence) > 0 {
		if b, err := json.Marshal(a.Evidence); err == nil {
			lines = append(lines, fmt.Sprintf("*Evidence:* `%s`", b))
		}
	}
	return strings.Join(lines, "\n")
}
