package types

// Check names appear verbatim in the CLI report, keep them stable.
const (
	CheckServiceActive = "service_active"
	CheckHTTPReachable = "http_reachable"
	CheckAuthEnforced  = "auth_enforced"
	CheckDBConnected   = "db_connected"
	CheckAPIContract   = "api_contract"
)

// CheckResult is one category of the health report. Applicable is false for
// checks that do not apply to the app (API contract on apps without a token);
// an inapplicable check never fails the report.
type CheckResult struct {
	Name       string
	Applicable bool
	Passed     bool
	Detail     string
}

// HealthReport always carries all five check categories, even when an early
// check fails. A deployment is only reported "done" to the operator once
// Healthy() is true.
type HealthReport struct {
	RunID  string
	AppKey string
	Checks []CheckResult
	Errors []string
}

func (r *HealthReport) Healthy() bool {
	for _, c := range r.Checks {
		if c.Applicable && !c.Passed {
			return false
		}
	}
	return len(r.Checks) > 0
}

// Failing returns the applicable checks that did not pass.
func (r *HealthReport) Failing() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Applicable && !c.Passed {
			out = append(out, c)
		}
	}
	return out
}
