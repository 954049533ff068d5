package agents

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/template"
)

// CodeGen scaffolds microservices from built-in templates, stores the
// generated files as an artifact, and pushes them to source control.
type CodeGen struct {
	scm       SourceControl
	artifacts *ArtifactStore
}

// CodeGenOption configures a CodeGen agent.
type CodeGenOption func(*CodeGen)

// WithArtifacts sets the artifact store generated files are written to.
// Without one, the store step is skipped.
func WithArtifacts(store *ArtifactStore) CodeGenOption {
	return func(c *CodeGen) {
		c.artifacts = store
	}
}

// NewCodeGen creates a code generation agent. scm may be nil, in which
// case the push step is skipped and a placeholder repository URL is
// reported.
func NewCodeGen(scm SourceControl, opts ...CodeGenOption) *CodeGen {
	c := &CodeGen{scm: scm}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Graph compiles the generation workflow:
//
//	generate_templates -> enhance_with_ai -> store_artifacts
//	  -> push_to_repo -> generate_readme -> END
func (c *CodeGen) Graph() (*opsgraph.CompiledGraph, error) {
	g := opsgraph.NewGraph().
		AddNode("generate_templates", c.generateTemplates).
		AddNode("enhance_with_ai", c.enhanceWithAI).
		AddNode("store_artifacts", c.storeArtifacts).
		AddNode("push_to_repo", c.pushToRepo).
		AddNode("generate_readme", c.generateReadme).
		AddEdge("generate_templates", "enhance_with_ai").
		AddEdge("enhance_with_ai", "store_artifacts").
		AddEdge("store_artifacts", "push_to_repo").
		AddEdge("push_to_repo", "generate_readme").
		AddEdge("generate_readme", opsgraph.END).
		SetEntry("generate_templates")

	return g.Compile()
}

func (c *CodeGen) generateTemplates(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	service := state.String(KeyServiceName)
	if service == "" {
		return nil, fmt.Errorf("service_name is required")
	}
	language := state.String(KeyLanguage)
	if language == "" {
		language = "go"
	}
	database := state.String(KeyDatabase)
	if database == "" {
		database = "postgres"
	}

	scaffold, ok := scaffolds[language]
	if !ok {
		return nil, fmt.Errorf("no scaffold for language %q", language)
	}

	vars := map[string]any{
		"service":  service,
		"database": database,
		"port":     defaultPort(language),
	}
	files, err := scaffold.Render(vars)
	if err != nil {
		return nil, fmt.Errorf("render %s scaffold: %w", language, err)
	}

	common, err := commonScaffold.Render(vars)
	if err != nil {
		return nil, fmt.Errorf("render common scaffold: %w", err)
	}
	for path, content := range common {
		files[path] = content
	}

	ctx.Logger().Info("generated scaffold", "service", service, "language", language, "files", len(files))
	return opsgraph.Update{
		KeyFiles:    files,
		KeyLanguage: language,
		KeyDatabase: database,
	}, nil
}

// enhanceWithAI is a pass-through refinement hook. It currently forwards
// the generated files unchanged.
func (c *CodeGen) enhanceWithAI(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	ctx.Logger().Debug("enhancement pass skipped, keeping generated files")
	return opsgraph.Update{}, nil
}

func (c *CodeGen) storeArtifacts(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	if c.artifacts == nil {
		return opsgraph.Update{}, nil
	}

	key := state.String(KeyServiceName) + "-" + ctx.RunID()
	dir, err := c.artifacts.Store(key, stateFiles(state, KeyFiles))
	if err != nil {
		return nil, fmt.Errorf("store artifacts: %w", err)
	}

	ctx.Logger().Info("stored artifacts", "dir", dir)
	return opsgraph.Update{KeyArtifactKey: key}, nil
}

func (c *CodeGen) pushToRepo(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	service := state.String(KeyServiceName)
	if c.scm == nil {
		ctx.Logger().Warn("no source control configured, skipping push")
		return opsgraph.Update{KeyRepoURL: "https://github.com/placeholder/" + service}, nil
	}

	url, err := c.scm.CreateRepo(ctx, service, "Auto-generated microservice: "+service, true)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}

	pushed := 0
	files := stateFiles(state, KeyFiles)
	for path, content := range files {
		err := c.scm.PushFile(ctx, service, "main", path, "Add "+path, []byte(content))
		if err != nil {
			ctx.Logger().Warn("could not push file", "path", path, "error", err)
			continue
		}
		pushed++
	}

	ctx.Logger().Info("pushed files", "repo", service, "pushed", pushed, "total", len(files))
	return opsgraph.Update{KeyRepoURL: url}, nil
}

func (c *CodeGen) generateReadme(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	service := state.String(KeyServiceName)
	language := state.String(KeyLanguage)
	database := state.String(KeyDatabase)

	if client := ctx.LLM(); client != nil {
		prompt := fmt.Sprintf(`Generate a README.md for a microservice:

Service: %s
Language: %s
Database: %s

Cover overview, getting started, running with docker compose, endpoints,
environment variables, and testing. Markdown only, concise.`, service, language, database)

		resp, err := client.Complete(ctx, llm.CompletionRequest{
			Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
			MaxTokens: 2000,
		})
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return opsgraph.Update{KeyReadme: resp.Content}, nil
		}
		ctx.Logger().Warn("readme generation failed, using fallback", "error", err)
	}

	readme := fmt.Sprintf(`# %s

A %s microservice backed by %s.

## Getting Started

`+"```bash"+`
docker compose up -d
curl http://localhost:%s/health
`+"```"+`

## Endpoints

- GET /health - health check
- GET /ready - readiness check
`, service, language, database, defaultPort(language))

	return opsgraph.Update{KeyReadme: readme}, nil
}

func defaultPort(language string) string {
	switch language {
	case "python":
		return "8000"
	case "node":
		return "3000"
	default:
		return "8080"
	}
}

// scaffolds holds the per-language service templates. Variables: service,
// database, port.
var scaffolds = map[string]template.Scaffold{
	"go": {
		"main.go": `package main

import (
	"log"
	"net/http"
	"os"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "${port}"
	}
	log.Printf("${service} listening on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, mux))
}
`,
		"go.mod": `module ${service}

go 1.24
`,
		"Dockerfile": `FROM golang:1.24-alpine AS build
WORKDIR /src
COPY . .
RUN go build -o /bin/${service} .

FROM alpine:3.20
COPY --from=build /bin/${service} /bin/${service}
EXPOSE ${port}
ENTRYPOINT ["/bin/${service}"]
`,
	},
	"python": {
		"app/main.py": `from fastapi import FastAPI

app = FastAPI(title="${service}")


@app.get("/health")
def health():
    return {"status": "ok"}


@app.get("/ready")
def ready():
    return {"status": "ready"}
`,
		"requirements.txt": `fastapi
uvicorn[standard]
`,
		"Dockerfile": `FROM python:3.12-slim
WORKDIR /app
COPY requirements.txt .
RUN pip install --no-cache-dir -r requirements.txt
COPY app ./app
EXPOSE ${port}
CMD ["uvicorn", "app.main:app", "--host", "0.0.0.0", "--port", "${port}"]
`,
	},
	"node": {
		"src/index.js": `const express = require("express");

const app = express();
app.use(express.json());

app.get("/health", (req, res) => res.json({ status: "ok" }));
app.get("/ready", (req, res) => res.json({ status: "ready" }));

const port = process.env.PORT || ${port};
app.listen(port, () => console.log("${service} listening on " + port));
`,
		"package.json": `{
  "name": "${service}",
  "version": "0.1.0",
  "main": "src/index.js",
  "scripts": {
    "start": "node src/index.js"
  },
  "dependencies": {
    "express": "^4.19.0"
  }
}
`,
		"Dockerfile": `FROM node:20-alpine
WORKDIR /app
COPY package.json .
RUN npm install --production
COPY src ./src
EXPOSE ${port}
CMD ["npm", "start"]
`,
	},
}

// commonScaffold holds files shared by every language.
var commonScaffold = template.Scaffold{
	".gitignore": `*.log
.env
dist/
node_modules/
__pycache__/
`,
	"docker-compose.yml": `services:
  ${service}:
    build: .
    ports:
      - "${port}:${port}"
    environment:
      - DATABASE_URL=postgres://postgres:postgres@db:5432/${service}
    depends_on:
      - db
  db:
    image: ${database}:16-alpine
    environment:
      - POSTGRES_PASSWORD=postgres
      - POSTGRES_DB=${service}
`,
}
