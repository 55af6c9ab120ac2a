package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"dispatch_backend/internal/fleet/ports"
)

// ErrMalformed marks a model reply that could not be decoded into the
// expected shape.
var ErrMalformed = errors.New("malformed model output")

// extractJSON pulls the first JSON object out of a reply, tolerating code
// fences and chatter around it.
func extractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in reply", ErrMalformed)
	}
	return text[start : end+1], nil
}

func decodeReply(raw string, out any) error {
	body, err := extractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func parseAllocation(raw string) (ports.AllocationSuggestion, error) {
	var out ports.AllocationSuggestion
	if err := decodeReply(raw, &out); err != nil {
		return ports.AllocationSuggestion{}, err
	}
	out.Reasoning = strings.TrimSpace(out.Reasoning)
	return out, nil
}

func parseRoute(raw string) (ports.RoutePlan, error) {
	var out ports.RoutePlan
	if err := decodeReply(raw, &out); err != nil {
		return ports.RoutePlan{}, err
	}
	if len(out.OptimizedRoute) == 0 {
		return ports.RoutePlan{}, fmt.Errorf("%w: empty route", ErrMalformed)
	}
	out.Reasoning = strings.TrimSpace(out.Reasoning)
	return out, nil
}

func parseRisk(raw string) (ports.RiskEstimate, error) {
	var payload struct {
		PredictedDelayMinutes *float64 `json:"predictedDelayMinutes"`
		Reasoning             string   `json:"reasoning"`
	}
	if err := decodeReply(raw, &payload); err != nil {
		return ports.RiskEstimate{}, err
	}
	if payload.PredictedDelayMinutes == nil {
		return ports.RiskEstimate{}, fmt.Errorf("%w: missing predictedDelayMinutes", ErrMalformed)
	}
	delay := *payload.PredictedDelayMinutes
	if math.IsNaN(delay) || math.IsInf(delay, 0) {
		return ports.RiskEstimate{}, fmt.Errorf("%w: non-finite delay", ErrMalformed)
	}
	return ports.RiskEstimate{
		PredictedDelayMinutes: math.Max(0, delay),
		Reasoning:             strings.TrimSpace(payload.Reasoning),
	}, nil
}

func parseSchedule(raw string) ([]ports.ScheduleSuggestion, error) {
	var payload struct {
		Suggestions []ports.ScheduleSuggestion `json:"suggestions"`
	}
	if err := decodeReply(raw, &payload); err != nil {
		return nil, err
	}
	if payload.Suggestions == nil {
		return []ports.ScheduleSuggestion{}, nil
	}
	return payload.Suggestions, nil
}
