// Package graph renders the routing table for humans: Mermaid flowcharts for
// docs and the HTTP surface, with an optional overlay showing the path one
// run actually took.
package graph

import (
	"fmt"
	"strings"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/graph"
)

// Overlay highlights one run's path on top of the static topology.
type Overlay struct {
	Visited []domain.NodeID
	Current domain.NodeID
}

// OverlayFromTrace builds an overlay from a recorded trace: every node the
// run entered is visited, the last successor is current.
func OverlayFromTrace(trace []domain.Transition) *Overlay {
	if len(trace) == 0 {
		return nil
	}
	o := &Overlay{}
	for _, tr := range trace {
		o.Visited = append(o.Visited, tr.Node)
	}
	last := trace[len(trace)-1].Next
	if last != domain.Terminal {
		o.Current = last
	}
	return o
}

// Mermaid renders the router's table as a flowchart. Shapes follow node
// roles: the entry is a circle, the sandbox a subroutine, nodes that phrase
// the user-visible answer are parallelograms, everything else a rectangle.
// Edges carry their outcome labels; edges into data_unavailability are
// dotted because they are the failure paths.
func Mermaid(r *graph.Router, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, id := range r.Nodes() {
		opener, closer := "[", "]"
		switch {
		case id == r.Entry():
			opener, closer = "((", "))"
		case id == domain.NodeSandboxEnvironment:
			opener, closer = "[[", "]]"
		case isResponseNode(id):
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", mermaidID(id), opener, id, closer)
	}
	fmt.Fprintf(&sb, "    %s((\"done\"))\n", mermaidID(domain.Terminal))

	for _, rt := range r.Routes() {
		arrow := fmt.Sprintf("-- \"%s\" -->", rt.On)
		if rt.To == domain.NodeDataUnavailability {
			arrow = fmt.Sprintf("-. \"%s\" .->", rt.On)
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", mermaidID(rt.From), arrow, mermaidID(rt.To))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Visited {
			safe := mermaidID(id)
			if safe == "" || seen[safe] {
				continue
			}
			seen[safe] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safe)
		}
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", mermaidID(overlay.Current))
		}
	}

	return sb.String()
}

func isResponseNode(id domain.NodeID) bool {
	switch id {
	case domain.NodeAnalysisResponse, domain.NodeDirectResponse,
		domain.NodePuntResponse, domain.NodeDataUnavailability:
		return true
	}
	return false
}

func mermaidID(id domain.NodeID) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_").Replace(string(id))
}
