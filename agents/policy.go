package agents

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/event"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/repair"
)

const (
	policiesTable = "policies"
	reportsTable  = "policy_reports"
)

// PolicyRule is one governance policy evaluated against submitted content.
type PolicyRule struct {
	PolicyID        string   `json:"policy_id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	AppliesTo       []string `json:"applies_to"`
	Severity        string   `json:"severity"` // critical, high, medium, low
	AutoFix         bool     `json:"auto_fix"`
	Blocking        bool     `json:"blocking"`
	Enabled         bool     `json:"enabled"`
	Rules           []string `json:"rules"`
	RemediationHint string   `json:"remediation_hint"`
}

// DefaultPolicies is the built-in policy set, seeded into the record store
// on first use.
var DefaultPolicies = []PolicyRule{
	{
		PolicyID:    "no-hardcoded-secrets",
		Name:        "No Hardcoded Secrets",
		Description: "Code and workflows must not contain API keys, passwords, or tokens.",
		AppliesTo:   []string{"code", "workflow"},
		Severity:    "critical",
		AutoFix:     true,
		Blocking:    true,
		Enabled:     true,
		Rules: []string{
			"No string literals matching common API key patterns (e.g. sk-, ghp_, AKIA)",
			"No variable assignments named password, secret, token, or key with hardcoded values",
			"No connection strings with embedded credentials",
		},
		RemediationHint: "Use environment variables or repository secrets instead of hardcoded values.",
	},
	{
		PolicyID:    "required-repo-files",
		Name:        "Required Repository Files",
		Description: "Repositories must include README.md, .gitignore, and LICENSE.",
		AppliesTo:   []string{"repository"},
		Severity:    "medium",
		Enabled:     true,
		Rules: []string{
			"README.md must exist in the repository root",
			".gitignore must exist in the repository root",
			"LICENSE file must exist in the repository root",
		},
		RemediationHint: "Add the missing files to the repository root.",
	},
	{
		PolicyID:    "workflow-has-checkout",
		Name:        "Workflow Must Use Checkout",
		Description: "GitHub Actions workflows must include an actions/checkout step.",
		AppliesTo:   []string{"workflow"},
		Severity:    "high",
		AutoFix:     true,
		Blocking:    true,
		Enabled:     true,
		Rules: []string{
			"At least one job must contain a step using actions/checkout@v3 or actions/checkout@v4",
			"The checkout step should appear before build or test steps",
		},
		RemediationHint: "Add 'uses: actions/checkout@v4' as the first step in each job.",
	},
	{
		PolicyID:    "workflow-no-sudo",
		Name:        "No Sudo in Workflows",
		Description: "Workflows should not run arbitrary sudo commands.",
		AppliesTo:   []string{"workflow"},
		Severity:    "medium",
		Enabled:     true,
		Rules: []string{
			"Run steps should not contain sudo unless using well-known package managers",
			"Avoid overly permissive operations like sudo chmod 777",
		},
		RemediationHint: "Use built-in runner features or containerized actions instead of sudo.",
	},
	{
		PolicyID:    "naming-conventions",
		Name:        "Naming Conventions",
		Description: "Repository and branch names must follow kebab-case conventions.",
		AppliesTo:   []string{"repository"},
		Severity:    "low",
		Enabled:     true,
		Rules: []string{
			"Repository names must be lowercase kebab-case, 3 to 50 characters",
			"No spaces, underscores, or uppercase letters in repository names",
		},
		RemediationHint: "Rename to lowercase kebab-case (e.g. 'Web Frontend' -> 'web-frontend').",
	},
	{
		PolicyID:    "dependency-pinning",
		Name:        "Dependency Pinning",
		Description: "GitHub Actions must pin action versions (no @main or @latest).",
		AppliesTo:   []string{"workflow"},
		Severity:    "medium",
		AutoFix:     true,
		Enabled:     true,
		Rules: []string{
			"All uses: directives must reference a specific version tag (e.g. @v4)",
			"Avoid @main, @master, or @latest as action versions",
		},
		RemediationHint: "Pin actions to specific versions (e.g. actions/checkout@v4).",
	},
}

// Policy scans content against the governance policy set, classifies the
// violations, suggests fixes for auto-fixable ones, and stores a report.
// Blocking violations of critical or high severity withhold approval.
type Policy struct{}

// NewPolicy creates a policy agent.
func NewPolicy() *Policy {
	return &Policy{}
}

const policyScanSystem = `You are a governance scanner for DevOps pipeline content. Evaluate
the content against each policy's rules. Return ONLY a JSON array of
finding objects, one per violated rule:
{
  "policy_id": "the violated policy",
  "rule": "the specific rule violated",
  "severity": "critical|high|medium|low",
  "blocking": true or false,
  "auto_fix": true or false,
  "description": "what is wrong",
  "location": "where in the content"
}
Copy severity, blocking, and auto_fix from the violated policy. Return []
when nothing is violated.`

const policyFixSystem = `You are a DevOps code remediation assistant. For each violation,
generate a concrete fix. Return ONLY a JSON array of objects with
"policy_id", "description", "original", and "suggested" fields.`

// Graph compiles the evaluation workflow:
//
//	load_policies -> scan_content -> evaluate_violations
//	  -> [suggest_fixes] -> build_report -> END
//
// suggest_fixes runs only when auto-fixable violations were found.
func (p *Policy) Graph() (*opsgraph.CompiledGraph, error) {
	g := opsgraph.NewGraph().
		AddNode("load_policies", p.loadPolicies).
		AddNode("scan_content", p.scanContent).
		AddNode("evaluate_violations", p.evaluateViolations).
		AddNode("suggest_fixes", p.suggestFixes).
		AddNode("build_report", p.buildReport).
		AddEdge("load_policies", "scan_content").
		AddEdge("scan_content", "evaluate_violations").
		AddConditionalEdge("evaluate_violations", p.routeAfterEvaluate, "suggest_fixes", "build_report").
		AddEdge("suggest_fixes", "build_report").
		AddEdge("build_report", opsgraph.END).
		SetEntry("load_policies")

	return g.Compile()
}

// loadPolicies reads the policy set from the record store, seeding the
// defaults on first use. Without a store the defaults apply directly.
func (p *Policy) loadPolicies(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	store := ctx.Store()
	if store == nil {
		return opsgraph.Update{KeyPolicies: policiesToAny(DefaultPolicies)}, nil
	}

	items, err := store.List(ctx, policiesTable)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}

	if len(items) == 0 {
		for _, rule := range DefaultPolicies {
			raw, err := json.Marshal(rule)
			if err != nil {
				return nil, fmt.Errorf("marshal policy %s: %w", rule.PolicyID, err)
			}
			if err := store.Put(ctx, policiesTable, rule.PolicyID, raw); err != nil {
				return nil, fmt.Errorf("seed policy %s: %w", rule.PolicyID, err)
			}
		}
		ctx.Logger().Info("seeded default policies", "count", len(DefaultPolicies))
		return opsgraph.Update{KeyPolicies: policiesToAny(DefaultPolicies)}, nil
	}

	policies := make([]PolicyRule, 0, len(items))
	for _, item := range items {
		var rule PolicyRule
		if err := json.Unmarshal(item.Value, &rule); err != nil {
			ctx.Logger().Warn("skipping malformed policy", "key", item.Key, "error", err)
			continue
		}
		if rule.Enabled {
			policies = append(policies, rule)
		}
	}
	return opsgraph.Update{KeyPolicies: policiesToAny(policies)}, nil
}

func (p *Policy) scanContent(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	client := ctx.LLM()
	if client == nil {
		return opsgraph.Update{KeyFindings: []any{}}, nil
	}

	contentType := state.String(KeyContentType)
	if contentType == "" {
		contentType = "code"
	}

	applicable := make([]PolicyRule, 0)
	for _, item := range state.Slice(KeyPolicies) {
		rule := asPolicyRule(item)
		for _, target := range rule.AppliesTo {
			if target == contentType {
				applicable = append(applicable, rule)
				break
			}
		}
	}
	if len(applicable) == 0 {
		return opsgraph.Update{KeyFindings: []any{}}, nil
	}

	policiesJSON, err := json.MarshalIndent(applicable, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal policies: %w", err)
	}

	content := state.String(KeyContent)
	if len(content) > 6000 {
		content = content[:6000]
	}
	prompt := fmt.Sprintf("Content type: %s\n\nPolicies:\n%s\n\nContent:\n```\n%s\n```",
		contentType, policiesJSON, content)

	resp, err := client.Complete(ctx, llm.UserMessage(policyScanSystem, prompt))
	if err != nil {
		return nil, fmt.Errorf("scan content: %w", err)
	}

	findings, ok := repair.Array(resp.Content)
	if !ok {
		ctx.Logger().Warn("unusable scan response, treating as no findings")
		findings = []any{}
	}
	return opsgraph.Update{KeyFindings: findings}, nil
}

// evaluateViolations classifies the findings by severity and decides
// approval. A blocking finding of critical or high severity withholds it.
func (p *Policy) evaluateViolations(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	summary := map[string]any{"critical": 0, "high": 0, "medium": 0, "low": 0}
	violations := make([]any, 0)
	approved := true
	autoFixable := false

	for _, item := range state.Slice(KeyFindings) {
		finding, ok := item.(map[string]any)
		if !ok {
			continue
		}

		severity := strings.ToLower(str(finding["severity"]))
		if _, known := summary[severity]; !known {
			severity = "medium"
		}
		summary[severity] = summary[severity].(int) + 1

		blocking, _ := finding["blocking"].(bool)
		if blocking && (severity == "critical" || severity == "high") {
			approved = false
		}
		autoFix, _ := finding["auto_fix"].(bool)
		if autoFix {
			autoFixable = true
		}

		violations = append(violations, map[string]any{
			"policy_id":   str(finding["policy_id"]),
			"rule":        str(finding["rule"]),
			"severity":    severity,
			"blocking":    blocking,
			"auto_fix":    autoFix,
			"description": str(finding["description"]),
			"location":    str(finding["location"]),
		})
	}

	return opsgraph.Update{
		KeyViolations:      violations,
		KeyApproved:        approved,
		KeyAutoFixable:     autoFixable,
		KeySeveritySummary: summary,
	}, nil
}

func (p *Policy) routeAfterEvaluate(ctx opsgraph.Context, state opsgraph.State) string {
	if state.Bool(KeyAutoFixable) && ctx.LLM() != nil {
		return "suggest_fixes"
	}
	return "build_report"
}

func (p *Policy) suggestFixes(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	fixable := make([]any, 0)
	for _, item := range state.Slice(KeyViolations) {
		if v, ok := item.(map[string]any); ok && v["auto_fix"] == true {
			fixable = append(fixable, v)
		}
	}
	if len(fixable) == 0 {
		return opsgraph.Update{KeyFixes: []any{}}, nil
	}

	violationsJSON, err := json.MarshalIndent(fixable, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal violations: %w", err)
	}

	content := state.String(KeyContent)
	if len(content) > 6000 {
		content = content[:6000]
	}
	prompt := fmt.Sprintf("Violations to fix:\n%s\n\nOriginal content:\n```\n%s\n```",
		violationsJSON, content)

	resp, err := ctx.LLM().Complete(ctx, llm.UserMessage(policyFixSystem, prompt))
	if err != nil {
		// Fixes are advisory. The report still ships without them.
		ctx.Logger().Warn("fix suggestion failed", "error", err)
		return opsgraph.Update{KeyFixes: []any{}}, nil
	}

	fixes, ok := repair.Array(resp.Content)
	if !ok {
		fixes = []any{}
	}
	ctx.Logger().Info("generated fix suggestions", "count", len(fixes))
	return opsgraph.Update{KeyFixes: fixes}, nil
}

func (p *Policy) buildReport(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	report := map[string]any{
		"approved":         state.Bool(KeyApproved),
		"content_type":     state.String(KeyContentType),
		"violations":       state.Slice(KeyViolations),
		"severity_summary": state.Map(KeySeveritySummary),
		"fixes":            state.Slice(KeyFixes),
		"evaluated_at":     time.Now().UTC().Format(time.RFC3339),
	}

	reportKey := ctx.RunID()
	if store := ctx.Store(); store != nil {
		raw, err := json.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("marshal report: %w", err)
		}
		if err := store.Put(ctx, reportsTable, reportKey, raw); err != nil {
			return nil, fmt.Errorf("store report: %w", err)
		}
	}

	if bus := ctx.Events(); bus != nil && !state.Bool(KeyApproved) {
		evt := event.New(event.TypePolicyViolated, "policy", map[string]any{
			"report_key":       reportKey,
			"severity_summary": state.Map(KeySeveritySummary),
		}).WithRunID(ctx.RunID())
		if err := bus.Publish(ctx, evt); err != nil {
			ctx.Logger().Warn("violation event not published", "error", err)
		}
	}

	return opsgraph.Update{KeyReport: report, KeyReportKey: reportKey}, nil
}

func policiesToAny(rules []PolicyRule) []any {
	out := make([]any, len(rules))
	for i, rule := range rules {
		out[i] = rule
	}
	return out
}

func asPolicyRule(item any) PolicyRule {
	switch v := item.(type) {
	case PolicyRule:
		return v
	case map[string]any:
		return PolicyRule{
			PolicyID:  str(v["policy_id"]),
			Name:      str(v["name"]),
			Severity:  str(v["severity"]),
			AppliesTo: strSlice(v["applies_to"]),
			AutoFix:   v["auto_fix"] == true,
			Blocking:  v["blocking"] == true,
			Enabled:   v["enabled"] == true,
			Rules:     strSlice(v["rules"]),
		}
	default:
		return PolicyRule{}
	}
}
