// internal/rules/catalog.go
package rules

import "github.com/user/sentinelops/internal/types"

// Rule codes.
const (
	PaymentFailureSpike = "payment_failure_spike"
	RefundSpike         = "refund_spike"
	ChurnSpike          = "churn_spike"
	AmountSpike         = "amount_spike"
	WebhookIntegrity    = "webhook_integrity"
	RapidRetryFailure   = "rapid_retry_failure"
)

// RuleDef is the static metadata of a rule.
type RuleDef struct {
	Code        string         `json:"code"`
	Severity    types.Severity `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
}

var catalog = []RuleDef{
	{
		Code:        PaymentFailureSpike,
		Severity:    types.SeverityHigh,
		Title:       "Payment failure spike",
		Description: "Payment failures rose sharply in the recent window.",
	},
	{
		Code:        RefundSpike,
		Severity:    types.SeverityHigh,
		Title:       "Refund spike",
		Description: "Refund count or volume rose sharply against the baseline.",
	},
	{
		Code:        ChurnSpike,
		Severity:    types.SeverityHigh,
		Title:       "Churn spike / subscription loss",
		Description: "Subscription cancellations or invoice failures rose sharply against the baseline.",
	},
	{
		Code:        AmountSpike,
		Severity:    types.SeverityMedium,
		Title:       "Amount spike",
		Description: "A single payment amount is far above the trailing 30-day average.",
	},
	{
		Code:        WebhookIntegrity,
		Severity:    types.SeverityLow,
		Title:       "Webhook integrity anomaly",
		Description: "Webhook observation quality degraded (invalid signatures or malformed payloads).",
	},
	{
		Code:        RapidRetryFailure,
		Severity:    types.SeverityHigh,
		Title:       "Rapid payment failure retries (5m)",
		Description: "Multiple payment failures detected within 5 minutes, possible checkout issue or card declines spike.",
	},
}

// Catalog returns a copy of every known rule definition.
func Catalog() []RuleDef {
	out := make([]RuleDef, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the definition for code.
func Lookup(code string) (RuleDef, bool) {
	for _, r := range catalog {
		if r.Code == code {
			return r, true
		}
	}
	return RuleDef{}, false
}
