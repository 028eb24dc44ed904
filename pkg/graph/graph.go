package graph

import (
	"fmt"

	"github.com/quarrydata/quarry/pkg/domain"
)

// Graph binds a validated router to the node implementations it drives.
type Graph struct {
	router *Router
	nodes  map[domain.NodeID]domain.Node
}

// New registers the nodes, derives each node's outcome vocabulary from its
// Outcomes declaration, and validates the routing table against it. All
// topology violations surface here, at build time.
func New(entry domain.NodeID, nodes []domain.Node, routes []Route) (*Graph, error) {
	registry := make(map[domain.NodeID]domain.Node, len(nodes))
	vocab := make(map[domain.NodeID][]domain.Outcome, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("%w: nil node registered", domain.ErrTopology)
		}
		id := n.ID()
		if _, dup := registry[id]; dup {
			return nil, fmt.Errorf("%w: node %q registered twice", domain.ErrTopology, id)
		}
		registry[id] = n
		vocab[id] = n.Outcomes()
	}

	router, err := NewRouter(entry, vocab, routes)
	if err != nil {
		return nil, err
	}
	return &Graph{router: router, nodes: registry}, nil
}

// Router exposes the validated routing table.
func (g *Graph) Router() *Router { return g.router }

// Entry returns the node every run starts at.
func (g *Graph) Entry() domain.NodeID { return g.router.Entry() }

// Node returns the implementation registered for an identifier.
func (g *Graph) Node(id domain.NodeID) (domain.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}
