// Package opsgraph provides a compiled state-graph engine for LLM-driven
// DevOps workflows.
//
// A workflow is declared as named nodes connected by edges, compiled once
// into an immutable graph, and executed many times concurrently. State is a
// key/value mapping accumulated by merging each node's partial update, which
// mirrors how multi-step agent pipelines pass intermediate results forward.
//
// Three edge kinds cover the control flow agents need:
//
//   - unconditional edges with a single fixed target
//   - conditional edges whose router picks among a declared candidate set
//   - bounded self-retry edges, where the engine itself caps how many times
//     a node may re-execute before forcing the declared exhausted target
//
// Structural defects (unknown entry, duplicate nodes, dangling targets,
// undeclared router candidates) are rejected at Compile time and can never
// surface during a run.
//
// Subpackages supply the collaborators workflows call from their node
// handlers: llm (model client), kv (table/key persistence), event (task
// dispatch), repair (structured-output recovery), config, observability,
// registry, and template.
package opsgraph
