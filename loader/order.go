package loader

import (
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

type moduleNode struct {
	name string
	id   int64
}

func (n moduleNode) ID() int64 { return n.id }

// dependencyOrder sorts modules so that every module follows the modules it
// requires. Ties keep discovery order. Edges to modules outside the set are
// ignored; they are already loaded.
func dependencyOrder(names []string, requires map[string][]string) ([]string, error) {
	g := simple.NewDirectedGraph()
	nodes := make(map[string]moduleNode, len(names))
	for i, name := range names {
		n := moduleNode{name: name, id: int64(i)}
		nodes[name] = n
		g.AddNode(n)
	}

	for _, name := range names {
		for _, dep := range requires[name] {
			if dep == name {
				return nil, fmt.Errorf("module %s requires itself", name)
			}
			from, ok := nodes[dep]
			if !ok {
				continue
			}
			g.SetEdge(g.NewEdge(from, nodes[name]))
		}
	}

	sorted, err := topo.SortStabilized(g, func(ns []graph.Node) {
		slices.SortFunc(ns, func(a, b graph.Node) int {
			switch {
			case a.ID() < b.ID():
				return -1
			case a.ID() > b.ID():
				return 1
			}
			return 0
		})
	})
	if err != nil {
		if cycles, ok := err.(topo.Unorderable); ok {
			return nil, fmt.Errorf("dependency cycle: %s", describeCycles(cycles))
		}
		return nil, err
	}

	order := make([]string, len(sorted))
	for i, n := range sorted {
		order[i] = n.(moduleNode).name
	}
	return order, nil
}

func describeCycles(cycles topo.Unorderable) string {
	var parts []string
	for _, component := range cycles {
		names := make([]string, len(component))
		for i, n := range component {
			names[i] = n.(moduleNode).name
		}
		slices.Sort(names)
		parts = append(parts, strings.Join(names, " <-> "))
	}
	return strings.Join(parts, "; ")
}
