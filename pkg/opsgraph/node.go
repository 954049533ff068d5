package opsgraph

// END is the terminal sentinel. Use it as an edge target (or router result)
// to indicate the run is complete.
const END = "__end__"

// NodeFunc is the signature for all node handlers.
// A node receives the execution context and the accumulated state, and
// returns a partial update (or an error). The engine merges the update into
// the state before routing; handlers must not mutate the state argument.
//
// Example:
//
//	func planTasks(ctx opsgraph.Context, s opsgraph.State) (opsgraph.Update, error) {
//	    tasks, err := decompose(ctx, s.String("template"))
//	    if err != nil {
//	        return nil, err
//	    }
//	    return opsgraph.Update{"tasks": tasks, "status": "planned"}, nil
//	}
type NodeFunc func(ctx Context, state State) (Update, error)

// RouterFunc chooses the next node for a conditional edge.
// It must return one of the edge's declared candidate targets (or END, if
// END was declared). Routers are pure decision functions: they inspect
// state, perform no I/O, and never mutate it.
type RouterFunc func(ctx Context, state State) string
