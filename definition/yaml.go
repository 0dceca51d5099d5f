package definition

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse reads a definition in YAML form:
//
//	id: order-approval
//	graph:
//	  root: approved
//	  nodes:
//	    approved:
//	      type: Event
//	      properties:
//	        event: OrderApproved
//	    done:
//	      type: Finish
//	  edges:
//	    - from: approved
//	      to: done
func Parse(r io.Reader) (*WorkflowDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var d WorkflowDefinition
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding definition: %w", err)
	}

	if d.Graph != nil {
		d.Graph.normalize()
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

func ParseFile(path string) (*WorkflowDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening definition: %w", err)
	}
	defer f.Close()

	return Parse(f)
}
