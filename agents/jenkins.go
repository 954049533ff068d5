package agents

import (
	"regexp"
	"strings"
)

// JenkinsPipeline is the structure extracted from a Jenkinsfile, either by
// the model or by the regex parser below.
type JenkinsPipeline struct {
	Type        string            `json:"type"` // declarative, scripted, or unknown
	Agent       string            `json:"agent"`
	Stages      []JenkinsStage    `json:"stages"`
	Environment map[string]string `json:"environment"`
	GitURL      string            `json:"git_url,omitempty"`
	GitBranch   string            `json:"git_branch,omitempty"`
	Triggers    []JenkinsTrigger  `json:"triggers"`
}

// JenkinsStage is one stage with its extracted step commands.
type JenkinsStage struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

// JenkinsTrigger is a build trigger. Value carries the cron expression for
// cron triggers and is empty for pollSCM.
type JenkinsTrigger struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

var (
	agentLabelRe = regexp.MustCompile(`agent\s+\{\s*label\s+["']([^"']+)["']`)
	agentAnyRe   = regexp.MustCompile(`agent\s+["']([^"']+)["']`)
	envBlockRe   = regexp.MustCompile(`(?s)environment\s*\{([^}]+)\}`)
	gitURLRe     = regexp.MustCompile(`git\s+(?:branch:\s*["']([^"']+)["'],?\s*)?url:\s*["']([^"']+)["']`)
	stageNameRe  = regexp.MustCompile(`stage\s*\(["']([^"']+)["']\)`)
	shCmdRe      = regexp.MustCompile(`sh\s+['"]([^'"]+)['"]`)
	batCmdRe     = regexp.MustCompile(`bat\s+['"]([^'"]+)['"]`)
	echoCmdRe    = regexp.MustCompile(`echo\s+['"]([^'"]+)['"]`)
	cronRe       = regexp.MustCompile(`cron\s*\(["']([^"']+)["']\)`)
	nodeLabelRe  = regexp.MustCompile(`node\s*\(["']([^"']+)["']\)`)
	scriptedRe   = regexp.MustCompile(`(?s)stage\s*\(["']([^"']+)["']\)\s*\{([^}]+)\}`)
)

// ParseJenkinsfile extracts pipeline structure from Jenkinsfile source.
// It handles both declarative (pipeline { ... }) and scripted (node { ... })
// syntax; unrecognized input yields Type "unknown" with no stages.
func ParseJenkinsfile(src string) JenkinsPipeline {
	p := JenkinsPipeline{
		Agent:       "ubuntu-latest",
		Environment: map[string]string{},
	}

	switch {
	case strings.Contains(src, "pipeline {"):
		p.Type = "declarative"
		parseDeclarative(src, &p)
	case strings.Contains(src, "node") || strings.Contains(src, "stage"):
		p.Type = "scripted"
		parseScripted(src, &p)
	default:
		p.Type = "unknown"
	}

	return p
}

func parseDeclarative(src string, p *JenkinsPipeline) {
	if m := agentLabelRe.FindStringSubmatch(src); m != nil {
		p.Agent = runnerForLabel(m[1])
	} else if m := agentAnyRe.FindStringSubmatch(src); m != nil {
		p.Agent = runnerForLabel(m[1])
	}

	if m := envBlockRe.FindStringSubmatch(src); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			key, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			key = strings.TrimSpace(key)
			value = strings.Trim(strings.TrimSpace(value), `"'`)
			if key != "" {
				p.Environment[key] = value
			}
		}
	}

	if m := gitURLRe.FindStringSubmatch(src); m != nil {
		p.GitURL = m[2]
		p.GitBranch = m[1]
	}

	// Slice the file at each stage header so nested braces inside a stage
	// body cannot truncate it.
	starts := stageNameRe.FindAllStringSubmatchIndex(src, -1)
	for i, loc := range starts {
		name := src[loc[2]:loc[3]]
		end := len(src)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		body := src[loc[0]:end]

		var steps []string
		for _, m := range shCmdRe.FindAllStringSubmatch(body, -1) {
			steps = append(steps, "sh '"+m[1]+"'")
		}
		for _, m := range batCmdRe.FindAllStringSubmatch(body, -1) {
			steps = append(steps, "bat '"+m[1]+"'")
		}
		for _, m := range echoCmdRe.FindAllStringSubmatch(body, -1) {
			steps = append(steps, "echo '"+m[1]+"'")
		}

		p.Stages = append(p.Stages, JenkinsStage{Name: name, Steps: steps})
	}

	if m := cronRe.FindStringSubmatch(src); m != nil {
		p.Triggers = append(p.Triggers, JenkinsTrigger{Type: "cron", Value: m[1]})
	}
	if strings.Contains(src, "pollSCM") {
		p.Triggers = append(p.Triggers, JenkinsTrigger{Type: "pollSCM"})
	}
}

func parseScripted(src string, p *JenkinsPipeline) {
	if m := nodeLabelRe.FindStringSubmatch(src); m != nil {
		p.Agent = runnerForLabel(m[1])
	}

	for _, m := range scriptedRe.FindAllStringSubmatch(src, -1) {
		var steps []string
		for _, line := range strings.Split(m[2], "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "/*") {
				continue
			}
			steps = append(steps, line)
		}
		p.Stages = append(p.Stages, JenkinsStage{Name: m[1], Steps: steps})
	}
}

// runnerForLabel maps a Jenkins agent label to the closest GitHub Actions
// hosted runner.
func runnerForLabel(label string) string {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "windows"):
		return "windows-latest"
	case strings.Contains(l, "macos"), strings.Contains(l, "mac"):
		return "macos-latest"
	default:
		return "ubuntu-latest"
	}
}

// pipelineFromMap rebuilds a JenkinsPipeline from the loose map a repaired
// model response produces.
func pipelineFromMap(m map[string]any) JenkinsPipeline {
	p := JenkinsPipeline{
		Type:        str(m["type"]),
		Agent:       str(m["agent"]),
		Environment: map[string]string{},
		GitURL:      str(m["git_url"]),
		GitBranch:   str(m["git_branch"]),
	}
	if p.Agent == "" {
		p.Agent = "ubuntu-latest"
	}

	if env, ok := m["environment"].(map[string]any); ok {
		for k, v := range env {
			if s, ok := v.(string); ok {
				p.Environment[k] = s
			}
		}
	}

	if stages, ok := m["stages"].([]any); ok {
		for _, item := range stages {
			stage, ok := item.(map[string]any)
			if !ok {
				continue
			}
			p.Stages = append(p.Stages, JenkinsStage{
				Name:  str(stage["name"]),
				Steps: strSlice(stage["steps"]),
			})
		}
	}

	if triggers, ok := m["triggers"].([]any); ok {
		for _, item := range triggers {
			trigger, ok := item.(map[string]any)
			if !ok {
				continue
			}
			p.Triggers = append(p.Triggers, JenkinsTrigger{
				Type:  str(trigger["type"]),
				Value: str(trigger["value"]),
			})
		}
	}

	return p
}
