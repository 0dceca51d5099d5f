package definition

import (
	"errors"
	"fmt"
	"sort"
)

// Graph is an arena of activity nodes. Nodes are addressed by id and edges are stored as id pairs,
// cycles (loops) never create reference cycles.
type Graph struct {
	Root  string           `json:"root" yaml:"root"`
	Nodes map[string]*Node `json:"nodes" yaml:"nodes"`
	Edges []Edge           `json:"edges,omitempty" yaml:"edges"`
}

// Node is a single activity in the graph.
type Node struct {
	ID         string         `json:"id" yaml:"-"`
	Type       string         `json:"type" yaml:"type"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties"`
}

// Edge connects the outgoing port of one node to another node.
type Edge struct {
	From string `json:"from" yaml:"from"`
	Port string `json:"port,omitempty" yaml:"port"`
	To   string `json:"to" yaml:"to"`
}

func NewGraph(root string) *Graph {
	return &Graph{
		Root:  root,
		Nodes: map[string]*Node{},
	}
}

// AddNode adds a node and returns the graph for chaining.
func (g *Graph) AddNode(id, activityType string, properties map[string]any) *Graph {
	g.Nodes[id] = &Node{ID: id, Type: activityType, Properties: properties}
	return g
}

// Connect adds an edge from the default port of from to to.
func (g *Graph) Connect(from, to string) *Graph {
	return g.ConnectPort(from, DefaultPort, to)
}

func (g *Graph) ConnectPort(from, port, to string) *Graph {
	g.Edges = append(g.Edges, Edge{From: from, Port: port, To: to})
	return g
}

func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// Next returns the targets of all edges leaving from through port, in declaration order.
func (g *Graph) Next(from, port string) []string {
	if port == "" {
		port = DefaultPort
	}

	var r []string
	for _, e := range g.Edges {
		if e.From == from && e.port() == port {
			r = append(r, e.To)
		}
	}

	return r
}

// NodeIDs returns all node ids in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

func (e Edge) port() string {
	if e.Port == "" {
		return DefaultPort
	}

	return e.Port
}

func (g *Graph) Validate() error {
	if len(g.Nodes) == 0 {
		return errors.New("graph has no nodes")
	}

	if _, ok := g.Nodes[g.Root]; !ok {
		return fmt.Errorf("root node %q does not exist", g.Root)
	}

	for id, n := range g.Nodes {
		if n == nil {
			return fmt.Errorf("node %q is empty", id)
		}

		if n.ID != "" && n.ID != id {
			return fmt.Errorf("node %q has mismatching id %q", id, n.ID)
		}

		if n.Type == "" {
			return fmt.Errorf("node %q has no activity type", id)
		}
	}

	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.From]; !ok {
			return fmt.Errorf("edge from unknown node %q", e.From)
		}

		if _, ok := g.Nodes[e.To]; !ok {
			return fmt.Errorf("edge to unknown node %q", e.To)
		}
	}

	return nil
}

// Clone returns a deep copy of the graph structure. Property maps are copied one level deep.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}

	c := &Graph{
		Root:  g.Root,
		Nodes: make(map[string]*Node, len(g.Nodes)),
		Edges: append([]Edge(nil), g.Edges...),
	}

	for id, n := range g.Nodes {
		nc := *n
		if n.Properties != nil {
			nc.Properties = make(map[string]any, len(n.Properties))
			for k, v := range n.Properties {
				nc.Properties[k] = v
			}
		}
		c.Nodes[id] = &nc
	}

	return c
}

// normalize fills in node ids from the map keys.
func (g *Graph) normalize() {
	for id, n := range g.Nodes {
		if n != nil {
			n.ID = id
		}
	}
}
