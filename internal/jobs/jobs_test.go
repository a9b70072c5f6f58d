package jobs

import (
	"encoding/json"
	"testing"
)

func TestNewExecuteTask(t *testing.T) {
	tests := []struct {
		name   string
		taskID string
	}{
		{name: "simple id", taskID: "task-123"},
		{name: "uuid-shaped id", taskID: "8f14e45f-ceea-4f8e-9a9d-1b3c7b6a0001"},
		{name: "empty id", taskID: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := NewExecuteTask(tt.taskID)
			if err != nil {
				t.Fatalf("NewExecuteTask() error = %v", err)
			}
			if task.Type() != TypeResearchExecute {
				t.Errorf("Type() = %q, want %q", task.Type(), TypeResearchExecute)
			}

			var payload ExecutePayload
			if err := json.Unmarshal(task.Payload(), &payload); err != nil {
				t.Fatalf("unmarshal payload: %v", err)
			}
			if payload.TaskID != tt.taskID {
				t.Errorf("payload.TaskID = %q, want %q", payload.TaskID, tt.taskID)
			}
		})
	}
}
