package agents

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionsWorkflow is a GitHub Actions workflow file. Field order follows
// the conventional layout of a hand-written workflow.
type ActionsWorkflow struct {
	Name string                `yaml:"name"`
	On   map[string]any        `yaml:"on"`
	Env  map[string]string     `yaml:"env,omitempty"`
	Jobs map[string]ActionsJob `yaml:"jobs"`
}

// ActionsJob is a single job within a workflow.
type ActionsJob struct {
	RunsOn string        `yaml:"runs-on"`
	Needs  []string      `yaml:"needs,omitempty"`
	Steps  []ActionsStep `yaml:"steps"`
}

// ActionsStep is one step in a job. Exactly one of Uses or Run is set.
type ActionsStep struct {
	Name string         `yaml:"name,omitempty"`
	Uses string         `yaml:"uses,omitempty"`
	Run  string         `yaml:"run,omitempty"`
	With map[string]any `yaml:"with,omitempty"`
}

var quotedArgRe = regexp.MustCompile(`["']([^"']+)["']`)

// BuildWorkflow converts a parsed Jenkins pipeline into a GitHub Actions
// workflow. Pipelines with up to three stages collapse into a single build
// job; larger pipelines get one job per stage.
func BuildWorkflow(p JenkinsPipeline, project string) ActionsWorkflow {
	wf := ActionsWorkflow{
		Name: project + " CI/CD",
		On:   convertTriggers(p.Triggers),
		Jobs: map[string]ActionsJob{},
	}
	if len(p.Environment) > 0 {
		wf.Env = p.Environment
	}

	if len(p.Stages) <= 3 {
		wf.Jobs["build"] = buildJob(p, p.Stages)
	} else {
		for _, stage := range p.Stages {
			name := strings.ReplaceAll(strings.ToLower(stage.Name), " ", "-")
			wf.Jobs[name] = buildJob(p, []JenkinsStage{stage})
		}
	}

	return wf
}

func convertTriggers(triggers []JenkinsTrigger) map[string]any {
	on := map[string]any{
		"push": map[string]any{"branches": []string{"main", "develop"}},
	}
	for _, t := range triggers {
		// pollSCM has no Actions equivalent; the push trigger covers it.
		if t.Type == "cron" && t.Value != "" {
			on["schedule"] = []map[string]string{{"cron": t.Value}}
		}
	}
	return on
}

func buildJob(p JenkinsPipeline, stages []JenkinsStage) ActionsJob {
	job := ActionsJob{RunsOn: p.Agent}

	maven := false
	for _, stage := range stages {
		for _, step := range stage.Steps {
			l := strings.ToLower(step)
			if strings.Contains(l, "mvnw") || strings.Contains(l, "mvn ") {
				maven = true
			}
		}
	}

	if p.GitURL != "" {
		repo := strings.TrimSuffix(strings.TrimPrefix(p.GitURL, "https://github.com/"), ".git")
		ref := p.GitBranch
		if ref == "" {
			ref = "main"
		}
		job.Steps = append(job.Steps, ActionsStep{
			Name: "Checkout repository",
			Uses: "actions/checkout@v4",
			With: map[string]any{"repository": repo, "ref": ref},
		})
	} else {
		job.Steps = append(job.Steps, ActionsStep{
			Name: "Checkout code",
			Uses: "actions/checkout@v4",
		})
	}

	if maven {
		job.Steps = append(job.Steps,
			ActionsStep{
				Name: "Set up JDK 17",
				Uses: "actions/setup-java@v4",
				With: map[string]any{
					"java-version": "17",
					"distribution": "temurin",
					"cache":        "maven",
				},
			},
			ActionsStep{
				Name: "Make Maven wrapper executable",
				Run:  "chmod +x mvnw",
			},
		)
	}

	for _, stage := range stages {
		for _, raw := range stage.Steps {
			if step, ok := convertStep(raw, stage.Name, p); ok {
				job.Steps = append(job.Steps, step)
			}
		}
	}

	if maven {
		job.Steps = append(job.Steps, ActionsStep{
			Name: "Upload JAR artifact",
			Uses: "actions/upload-artifact@v4",
			With: map[string]any{"name": "application-jar", "path": "target/*.jar"},
		})
	}

	return job
}

// convertStep maps one Jenkins step to an Actions step. ok is false for
// steps that are handled elsewhere (checkout) or are pure control syntax.
func convertStep(raw, stageName string, p JenkinsPipeline) (ActionsStep, bool) {
	lower := strings.ToLower(raw)

	switch {
	case strings.HasPrefix(raw, "sh ") || strings.HasPrefix(raw, "bat "):
		m := quotedArgRe.FindStringSubmatch(raw)
		if m == nil {
			return ActionsStep{}, false
		}
		return ActionsStep{Name: stepName(stageName, m[1]), Run: m[1]}, true

	case strings.HasPrefix(raw, "echo "):
		m := quotedArgRe.FindStringSubmatch(raw)
		if m == nil {
			return ActionsStep{}, false
		}
		return ActionsStep{Name: m[1], Run: fmt.Sprintf("echo %q", m[1])}, true

	case strings.Contains(lower, "checkout"),
		strings.Contains(lower, "git") && p.GitURL != "":
		// Checkout is emitted once at the top of the job.
		return ActionsStep{}, false

	case strings.Contains(raw, "archiveArtifacts"):
		m := regexp.MustCompile(`artifacts:\s*["']([^"']+)["']`).FindStringSubmatch(raw)
		if m == nil {
			return ActionsStep{}, false
		}
		return ActionsStep{
			Name: "Upload artifacts",
			Uses: "actions/upload-artifact@v4",
			With: map[string]any{"name": "build-artifacts", "path": m[1]},
		}, true

	case strings.Contains(lower, "docker") && strings.Contains(lower, "build"):
		return ActionsStep{
			Name: "Build Docker image",
			Uses: "docker/build-push-action@v5",
			With: map[string]any{
				"context": ".",
				"push":    false,
				"tags":    "${{ github.repository }}:${{ github.sha }}",
			},
		}, true

	case raw == "" || raw == "{" || raw == "}" || raw == "if" || raw == "else" || raw == "script":
		return ActionsStep{}, false

	default:
		return ActionsStep{
			Name: stepName(stageName, raw),
			Run:  strings.TrimSuffix(strings.TrimSpace(raw), ";"),
		}, true
	}
}

func stepName(stage, cmd string) string {
	if len(cmd) > 40 {
		cmd = cmd[:40]
	}
	return stage + ": " + cmd
}

var windowsPatterns = []string{"mvnw.cmd", "gradlew.bat", ".bat", ".cmd", "powershell", ".exe"}

// CleanPlatformCommands removes run steps whose commands cannot execute on
// the target runner: Windows-only commands on Linux or macOS runners, and
// Unix-style invocations on Windows runners. Input that does not parse as
// a workflow is returned unchanged.
func CleanPlatformCommands(workflowYAML, runner string) (string, int) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(workflowYAML), &doc); err != nil {
		return workflowYAML, 0
	}
	jobs, ok := doc["jobs"].(map[string]any)
	if !ok {
		return workflowYAML, 0
	}

	removed := 0
	for _, jobAny := range jobs {
		job, ok := jobAny.(map[string]any)
		if !ok {
			continue
		}
		steps, ok := job["steps"].([]any)
		if !ok {
			continue
		}

		kept := make([]any, 0, len(steps))
		for _, stepAny := range steps {
			step, ok := stepAny.(map[string]any)
			if !ok {
				kept = append(kept, stepAny)
				continue
			}
			run, ok := step["run"].(string)
			if !ok {
				kept = append(kept, stepAny)
				continue
			}
			if mismatchedStep(run, runner) {
				removed++
				continue
			}
			kept = append(kept, stepAny)
		}
		job["steps"] = kept
	}

	if removed == 0 {
		return workflowYAML, 0
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return workflowYAML, 0
	}
	return string(out), removed
}

func mismatchedStep(run, runner string) bool {
	lower := strings.ToLower(run)
	switch runner {
	case "ubuntu-latest", "macos-latest":
		for _, pat := range windowsPatterns {
			if strings.Contains(lower, pat) {
				return true
			}
		}
	case "windows-latest":
		if strings.HasPrefix(run, "./") &&
			!strings.Contains(lower, ".cmd") &&
			!strings.Contains(lower, ".bat") &&
			!strings.Contains(lower, ".exe") {
			return true
		}
	}
	return false
}
