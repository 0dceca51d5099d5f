package cmd

import (
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/dispatcher"
)

type instanceView struct {
	Outcome    dispatcher.Outcome `json:"outcome"`
	InstanceID string             `json:"instance_id,omitempty"`
	Status     core.Status        `json:"status,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type itemView struct {
	InstanceID     string                `json:"instance_id"`
	DefinitionID   string                `json:"definition_id,omitempty"`
	Status         dispatcher.ItemStatus `json:"status"`
	InstanceStatus core.Status           `json:"instance_status,omitempty"`
	Error          string                `json:"error,omitempty"`
}

type batchView struct {
	Outcome     dispatcher.Outcome `json:"outcome"`
	InstanceIDs []string           `json:"instance_ids"`
	Items       []itemView         `json:"items"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

func newBatchView(outcome dispatcher.Outcome, ids []string, items []dispatcher.ItemResult) batchView {
	v := batchView{Outcome: outcome, InstanceIDs: ids, Items: make([]itemView, 0, len(items))}
	for _, item := range items {
		v.Items = append(v.Items, itemView{
			InstanceID:     item.InstanceID,
			DefinitionID:   item.DefinitionID,
			Status:         item.Status,
			InstanceStatus: item.InstanceStatus,
			Error:          errString(item.Err),
		})
	}

	return v
}
