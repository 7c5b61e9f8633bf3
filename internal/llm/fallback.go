package llm

import (
	"strings"

	"github.com/hardgate/internal/taxonomy"
)

type techRule struct {
	category string
	tech     taxonomy.Technology
	keywords []string
}

var techRules = []techRule{
	{"languages", taxonomy.Technology{Name: "Java", Version: "8+", Purpose: "main application"}, []string{"java", "spring", "maven", "gradle"}},
	{"frameworks", taxonomy.Technology{Name: "Spring Framework", Version: "5.x", Purpose: "web framework"}, []string{"spring"}},
	{"languages", taxonomy.Technology{Name: "JavaScript", Version: "ES6+", Purpose: "client/server side"}, []string{"javascript", ".js", "node", "npm", "package.json"}},
	{"languages", taxonomy.Technology{Name: "Python", Version: "3.x", Purpose: "application development"}, []string{"python", ".py", "flask", "django", "requirements.txt"}},
	{"languages", taxonomy.Technology{Name: "Go", Version: "N/A", Purpose: "application development"}, []string{"golang", "go.mod", ".go "}},
	{"databases", taxonomy.Technology{Name: "Database", Version: "N/A", Purpose: "data storage"}, []string{"mysql", "postgresql", "oracle", "h2", "database"}},
}

// signal is a keyword family looked up once per response.
type signal []string

func (s signal) in(text string) bool {
	for _, kw := range s {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

var (
	sigLogging   = signal{"log", "logger", "slf4j", "logback", "log4j", "logging", "zerolog"}
	sigAudit     = signal{"audit", "trail"}
	sigTracking  = signal{"correlation", "trace", "request-id", "tracking"}
	sigREST      = signal{"rest", "controller", "@restcontroller", "api", "endpoint"}
	sigRetry     = signal{"retry", "resilience4j", "tenacity", "@retryable", "backoff"}
	sigTimeout   = signal{"timeout", "read-timeout", "connection-timeout"}
	sigThrottle  = signal{"rate limit", "ratelimit", "throttl"}
	sigBreaker   = signal{"circuit", "breaker", "hystrix", "@circuitbreaker"}
	sigErrors    = signal{"try", "catch", "exception", "error"}
	sigHTTPCodes = signal{"httpstatus", "response.status", "status code"}
	sigTests     = signal{"test", "junit", "mockito", "testng", "spec", "cucumber"}
	sigMonitor   = signal{"health", "actuator", "liveness", "readiness", "monitoring"}
)

// TextPatternRecord synthesises a conservative record from free text when the
// response carries no usable JSON. A detected signal only ever yields
// "partial" because keyword hits are not proof of implementation.
func TextPatternRecord(text string) *taxonomy.AnalysisRecord {
	lower := strings.ToLower(text)
	rec := taxonomy.NewRecord()

	seen := map[string]bool{}
	for _, rule := range techRules {
		if seen[rule.tech.Name] || !signal(rule.keywords).in(lower) {
			continue
		}
		seen[rule.tech.Name] = true
		tech := rule.tech
		tech.Files = []string{}
		rec.TechnologyStack[rule.category] = append(rec.TechnologyStack[rule.category], tech)
	}

	hasLogging := sigLogging.in(lower)
	hasREST := sigREST.in(lower)
	hasTests := sigTests.in(lower)

	set := func(cat, practice string, detected bool, found, missing, rec0 string) {
		res := taxonomy.PracticeResult{Implemented: taxonomy.StatusNo, Evidence: missing, Recommendation: rec0}
		if detected {
			res.Implemented = taxonomy.StatusPartial
			res.Evidence = found
		}
		rec.SecurityQualityAnalysis[cat][practice] = res
	}

	rec.SecurityQualityAnalysis = taxonomy.Skeleton()
	set("auditability", "avoid_logging_confidential_data", true,
		"Manual code review required to verify no sensitive data is logged", "",
		"Review all log statements to ensure no sensitive data is logged")
	set("auditability", "create_audit_trail_logs", sigAudit.in(lower),
		"Audit logging patterns mentioned", "No audit logging patterns found",
		"Implement audit trail logging for important business operations")
	set("auditability", "tracking_id_for_log_messages", sigTracking.in(lower),
		"Correlation/tracking ID patterns mentioned", "No correlation ID patterns found",
		"Add tracking/correlation IDs to log messages for request tracing")
	set("auditability", "log_rest_api_calls", hasREST && hasLogging,
		"REST endpoints and logging mentioned", "No REST API logging detected",
		"Add request/response logging for all API calls")
	set("auditability", "log_application_messages", hasLogging,
		"Application logging framework mentioned", "No logging framework detected",
		"Standardize application logging levels and messages")
	set("auditability", "client_ui_errors_are_logged", false,
		"", "Client-side error logging not detected",
		"Implement client-side error logging and reporting mechanism")

	set("availability", "retry_logic", sigRetry.in(lower),
		"Retry patterns mentioned", "No retry patterns detected",
		"Implement retry logic for external service calls")
	set("availability", "set_timeouts_on_io_operations", sigTimeout.in(lower),
		"Timeout configurations mentioned", "Timeout configuration not explicitly found",
		"Ensure all IO operations have appropriate timeout configurations")
	set("availability", "throttling_drop_request", sigThrottle.in(lower),
		"Rate limiting patterns mentioned", "No rate limiting detected",
		"Implement request throttling and rate limiting")
	set("availability", "circuit_breakers_on_outgoing_requests", sigBreaker.in(lower),
		"Circuit breaker patterns mentioned", "No circuit breaker patterns detected",
		"Implement circuit breaker pattern for external service calls")

	set("error_handling", "log_system_errors", sigErrors.in(lower) && hasLogging,
		"Exception handling and logging mentioned", "No error logging patterns detected",
		"Ensure all system errors are properly logged with context")
	set("error_handling", "use_http_standard_error_codes", sigHTTPCodes.in(lower) || hasREST,
		"HTTP status code usage mentioned", "No HTTP status code patterns detected",
		"Verify all endpoints return appropriate HTTP status codes")
	set("error_handling", "include_client_error_tracking", false,
		"", "No client error tracking mechanism detected",
		"Implement client-side error tracking and reporting")

	set("monitoring", "url_monitoring", sigMonitor.in(lower),
		"Health or monitoring endpoints mentioned", "No URL monitoring detected",
		"Expose health endpoints and register them with URL monitoring")

	set("testing", "automated_regression_testing", hasTests,
		"Test framework mentioned", "No testing framework detected",
		"Implement comprehensive automated regression testing")

	if !hasLogging {
		rec.Findings = append(rec.Findings, taxonomy.Finding{
			Category:       "missing_logging",
			Severity:       taxonomy.SeverityHigh,
			Description:    "No logging framework detected",
			Location:       taxonomy.Location{File: taxonomy.UnknownFile},
			Recommendation: "Implement comprehensive logging",
		})
	}
	if !hasTests {
		rec.Findings = append(rec.Findings, taxonomy.Finding{
			Category:       "missing_tests",
			Severity:       taxonomy.SeverityHigh,
			Description:    "No test framework detected",
			Location:       taxonomy.Location{File: taxonomy.UnknownFile},
			Recommendation: "Implement automated testing",
		})
	}

	if hasREST {
		rec.ComponentAnalysis["rest_api"] = taxonomy.ComponentResult{Detected: "yes", Evidence: "REST API patterns mentioned in analysis text"}
	}
	return rec
}
