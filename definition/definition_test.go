package definition

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Graph_Next(t *testing.T) {
	g := NewGraph("a").
		AddNode("a", "Event", nil).
		AddNode("b", "Log", nil).
		AddNode("c", "Log", nil).
		AddNode("d", "Finish", nil).
		Connect("a", "b").
		Connect("a", "c").
		ConnectPort("b", "failed", "d")

	require.Equal(t, []string{"b", "c"}, g.Next("a", ""))
	require.Equal(t, []string{"b", "c"}, g.Next("a", DefaultPort))
	require.Empty(t, g.Next("b", DefaultPort))
	require.Equal(t, []string{"d"}, g.Next("b", "failed"))
	require.NoError(t, g.Validate())
}

func Test_Graph_Validate(t *testing.T) {
	require.Error(t, NewGraph("a").Validate())
	require.Error(t, NewGraph("x").AddNode("a", "Log", nil).Validate())
	require.Error(t, NewGraph("a").AddNode("a", "", nil).Validate())
	require.Error(t, NewGraph("a").AddNode("a", "Log", nil).Connect("a", "missing").Validate())

	// Loops are allowed
	require.NoError(t, NewGraph("a").AddNode("a", "Log", nil).Connect("a", "a").Validate())
}

func Test_Clone_DoesNotAlias(t *testing.T) {
	d := &WorkflowDefinition{
		ID:    "d",
		Graph: NewGraph("a").AddNode("a", "Log", map[string]any{"message": "hi"}),
	}

	c := d.Clone()
	c.Graph.Nodes["a"].Properties["message"] = "changed"
	c.Graph.AddNode("b", "Log", nil)

	require.Equal(t, "hi", d.Graph.Nodes["a"].Properties["message"])
	require.Len(t, d.Graph.Nodes, 1)
}

func Test_Parse(t *testing.T) {
	d, err := Parse(strings.NewReader(`
id: order-approval
graph:
  root: approved
  nodes:
    approved:
      type: Event
      properties:
        event: OrderApproved
    done:
      type: Finish
  edges:
    - from: approved
      to: done
`))
	require.NoError(t, err)
	require.Equal(t, "order-approval", d.ID)
	require.Equal(t, "approved", d.Graph.Root)
	require.Equal(t, "approved", d.Graph.Nodes["approved"].ID)
	require.Equal(t, "OrderApproved", d.Graph.Nodes["approved"].Properties["event"])
	require.Equal(t, []string{"done"}, d.Graph.Next("approved", DefaultPort))
}

func Test_Parse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader(`
id: broken
graph:
  root: missing
  nodes:
    a:
      type: Log
`))
	require.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = Parse(strings.NewReader(`
id: unknown-field
foo: bar
`))
	require.Error(t, err)
}
