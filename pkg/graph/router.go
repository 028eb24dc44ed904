// Package graph encodes the execution-graph topology as data.
//
// The routing table maps (node, outcome) pairs to successors. Keeping the
// topology in a table, rather than inside node bodies, lets it be audited,
// tested and rendered independently of node behavior. Unknown pairs are a
// configuration error caught when the graph is built, never at run time.
package graph

import (
	"fmt"
	"sort"

	"github.com/quarrydata/quarry/pkg/domain"
)

// Route is one edge of the topology: when From yields On, the run moves
// to To. domain.Terminal as To marks a sink.
type Route struct {
	From domain.NodeID  `json:"from"`
	On   domain.Outcome `json:"on"`
	To   domain.NodeID  `json:"to"`
}

// Router resolves (node, outcome) pairs against a validated table. It is a
// pure lookup: the same pair always yields the same successor, which is what
// makes recorded runs replayable.
type Router struct {
	entry domain.NodeID
	table map[domain.NodeID]map[domain.Outcome]domain.NodeID
}

// NewRouter validates routes against each node's declared outcome vocabulary
// and builds the lookup table. Every violation (an edge for an outcome the
// node never produces, a declared outcome with no edge, duplicate edges,
// edges to unregistered nodes, unreachable nodes) is domain.ErrTopology.
func NewRouter(entry domain.NodeID, vocab map[domain.NodeID][]domain.Outcome, routes []Route) (*Router, error) {
	if _, ok := vocab[entry]; !ok {
		return nil, fmt.Errorf("%w: entry node %q not registered", domain.ErrTopology, entry)
	}

	table := make(map[domain.NodeID]map[domain.Outcome]domain.NodeID, len(vocab))
	for id := range vocab {
		table[id] = make(map[domain.Outcome]domain.NodeID)
	}

	for _, rt := range routes {
		produced, ok := vocab[rt.From]
		if !ok {
			return nil, fmt.Errorf("%w: route from unregistered node %q", domain.ErrTopology, rt.From)
		}
		if !containsOutcome(produced, rt.On) {
			return nil, fmt.Errorf("%w: node %q never produces outcome %q", domain.ErrTopology, rt.From, rt.On)
		}
		if _, dup := table[rt.From][rt.On]; dup {
			return nil, fmt.Errorf("%w: duplicate route for (%s, %s)", domain.ErrTopology, rt.From, rt.On)
		}
		if rt.To != domain.Terminal {
			if _, ok := vocab[rt.To]; !ok {
				return nil, fmt.Errorf("%w: route (%s, %s) targets unregistered node %q", domain.ErrTopology, rt.From, rt.On, rt.To)
			}
		}
		table[rt.From][rt.On] = rt.To
	}

	// Every declared outcome needs exactly one edge.
	for id, outcomes := range vocab {
		for _, out := range outcomes {
			if _, ok := table[id][out]; !ok {
				return nil, fmt.Errorf("%w: no route for (%s, %s)", domain.ErrTopology, id, out)
			}
		}
	}

	r := &Router{entry: entry, table: table}
	if err := r.checkReachable(); err != nil {
		return nil, err
	}
	return r, nil
}

// Route returns the successor for a (node, outcome) pair. An outcome outside
// the node's vocabulary is domain.ErrUnknownOutcome, a programming error
// rather than a runtime condition.
func (r *Router) Route(node domain.NodeID, outcome domain.Outcome) (domain.NodeID, error) {
	edges, ok := r.table[node]
	if !ok {
		return "", fmt.Errorf("%w: node %q not in routing table", domain.ErrUnknownOutcome, node)
	}
	next, ok := edges[outcome]
	if !ok {
		return "", fmt.Errorf("%w: node %q produced %q", domain.ErrUnknownOutcome, node, outcome)
	}
	return next, nil
}

// Entry returns the node every run starts at.
func (r *Router) Entry() domain.NodeID { return r.entry }

// Outcomes returns the node's routed vocabulary, sorted.
func (r *Router) Outcomes(node domain.NodeID) []domain.Outcome {
	edges := r.table[node]
	out := make([]domain.Outcome, 0, len(edges))
	for o := range edges {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Nodes returns all registered node identifiers, sorted.
func (r *Router) Nodes() []domain.NodeID {
	ids := make([]domain.NodeID, 0, len(r.table))
	for id := range r.table {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Routes returns the full table as sorted edges, for inspection and
// rendering.
func (r *Router) Routes() []Route {
	var routes []Route
	for from, edges := range r.table {
		for on, to := range edges {
			routes = append(routes, Route{From: from, On: on, To: to})
		}
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].From != routes[j].From {
			return routes[i].From < routes[j].From
		}
		return routes[i].On < routes[j].On
	})
	return routes
}

// Replay walks a recorded trace through the table and returns the visited
// node sequence, ending with the successor of the last transition. Each
// (node, outcome) pair must route, and each recorded Next must match the
// table's successor; the single sanctioned divergence is an executor-forced
// hop into data_unavailability (retry bound, hop ceiling). A trace that
// contradicts the table fails with the same errors live routing would
// produce.
func (r *Router) Replay(trace []domain.Transition) ([]domain.NodeID, error) {
	current := r.entry
	visited := []domain.NodeID{current}
	for _, tr := range trace {
		if tr.Node != current {
			return nil, fmt.Errorf("%w: trace seq %d visits %q, path expects %q", domain.ErrTopology, tr.Seq, tr.Node, current)
		}
		next, err := r.Route(tr.Node, tr.Outcome)
		if err != nil {
			return nil, err
		}
		if tr.Next != "" && tr.Next != next {
			if tr.Next != domain.NodeDataUnavailability {
				return nil, fmt.Errorf("%w: trace seq %d records successor %q, table routes (%s, %s) to %q", domain.ErrTopology, tr.Seq, tr.Next, tr.Node, tr.Outcome, next)
			}
			next = tr.Next
		}
		visited = append(visited, next)
		current = next
	}
	return visited, nil
}

func (r *Router) checkReachable() error {
	seen := map[domain.NodeID]bool{r.entry: true}
	queue := []domain.NodeID{r.entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, to := range r.table[id] {
			if to == domain.Terminal || seen[to] {
				continue
			}
			seen[to] = true
			queue = append(queue, to)
		}
	}
	for id := range r.table {
		if !seen[id] {
			return fmt.Errorf("%w: node %q unreachable from entry %q", domain.ErrTopology, id, r.entry)
		}
	}
	return nil
}

func containsOutcome(set []domain.Outcome, o domain.Outcome) bool {
	for _, s := range set {
		if s == o {
			return true
		}
	}
	return false
}
