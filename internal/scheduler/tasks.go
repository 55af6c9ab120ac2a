package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskGenerateRecurring = "fleet.recurring.generate"

const TaskProposeJob = "fleet.assignment.propose"

// GenerateRecurringPayload asks for recurring generation. An empty CompanyID
// runs every company; an empty Target means the policy horizon from now.
type GenerateRecurringPayload struct {
	CompanyID string `json:"companyId,omitempty"`
	Target    string `json:"target,omitempty"`
}

type ProposeJobPayload struct {
	CompanyID string `json:"companyId"`
	JobID     string `json:"jobId"`
}

func NewGenerateRecurringTask(payload GenerateRecurringPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGenerateRecurring, data), nil
}

func ParseGenerateRecurringPayload(task *asynq.Task) (GenerateRecurringPayload, error) {
	var payload GenerateRecurringPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return GenerateRecurringPayload{}, err
	}
	return payload, nil
}

func NewProposeJobTask(payload ProposeJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProposeJob, data), nil
}

func ParseProposeJobPayload(task *asynq.Task) (ProposeJobPayload, error) {
	var payload ProposeJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProposeJobPayload{}, err
	}
	return payload, nil
}
