package agents

// State keys shared across the agent graphs. Each agent reads its inputs
// and writes its outputs under these keys so callers and downstream nodes
// agree on the shape of the run state.
const (
	// Planner.
	KeyRequest      = "request"
	KeyEnvironment  = "environment"
	KeyRequestedBy  = "requested_by"
	KeyWorkflowID   = "workflow_id"
	KeyTasks        = "tasks"
	KeyTaskCount    = "task_count"
	KeyFallbackUsed = "fallback_used"
	KeyDispatched   = "dispatched"

	// Migration.
	KeyJenkinsfile  = "jenkinsfile"
	KeyProjectName  = "project_name"
	KeyPipeline     = "pipeline"
	KeyParser       = "parser"
	KeyGenerator    = "generator"
	KeyWorkflowYAML = "workflow_yaml"
	KeyCleanedYAML  = "cleaned_yaml"
	KeyReport       = "report"
	KeyWarnings     = "warnings"

	// Chatbot.
	KeySessionID    = "session_id"
	KeyMessage      = "message"
	KeyIntent       = "intent"
	KeyActionNeeded = "action_needed"
	KeyParameters   = "parameters"
	KeyActionResult = "action_result"
	KeyResponse     = "response"

	// Remediation.
	KeyPipelineID = "pipeline_id"
	KeyLogs       = "logs"
	KeyAnalysis   = "analysis"
	KeyPlaybook   = "playbook"
	KeyOutcome    = "outcome"

	// CodeGen.
	KeyServiceName = "service_name"
	KeyLanguage    = "language"
	KeyDatabase    = "database"
	KeyAPIType     = "api_type"
	KeyFiles       = "files"
	KeyArtifactKey = "artifact_key"
	KeyRepoURL     = "repo_url"
	KeyReadme      = "readme"

	// Policy.
	KeyContent         = "content"
	KeyContentType     = "content_type"
	KeyPolicies        = "policies"
	KeyFindings        = "findings"
	KeyViolations      = "violations"
	KeyApproved        = "approved"
	KeyAutoFixable     = "auto_fixable"
	KeySeveritySummary = "severity_summary"
	KeyFixes           = "fixes"
	KeyReportKey       = "report_key"
)

// Outcome values written under KeyOutcome by the remediation agent.
const (
	OutcomeFixed     = "fixed"
	OutcomeRetrying  = "retrying"
	OutcomeEscalated = "manual_intervention_required"
)

// stateFiles reads a map[string]string stored under key, tolerating the
// map[string]any shape it takes after a JSON round trip.
func stateFiles(s map[string]any, key string) map[string]string {
	switch v := s[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		files := make(map[string]string, len(v))
		for path, content := range v {
			if text, ok := content.(string); ok {
				files[path] = text
			}
		}
		return files
	default:
		return nil
	}
}
