package backlog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// TaskMetadata holds the optional per-task fields carried by HTML
// comments in the backlog document. A nil field means the comment did
// not set it.
type TaskMetadata struct {
	// Score is the composite score from a score_total comment.
	Score *float64
	// ScoreBreakdown is the per-dimension score map from a score comment.
	ScoreBreakdown map[string]float64
	// HumanRequired is the flag from a human_required comment.
	HumanRequired *bool
	// Command is the shell command from a run comment.
	Command *string
}

// parseMetadata parses a single comment body of the form "key: value".
// Unknown keys and comments without a key return (nil, nil) so that
// ordinary prose comments pass through untouched.
func parseMetadata(body string) (*TaskMetadata, error) {
	key, value, ok := strings.Cut(body, ":")
	if !ok {
		return nil, nil
	}
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	switch key {
	case "score_total":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid score_total %q", value)
		}
		return &TaskMetadata{Score: &v}, nil
	case "score":
		var breakdown map[string]float64
		if err := json.Unmarshal([]byte(value), &breakdown); err != nil {
			return nil, fmt.Errorf("invalid score breakdown %q", value)
		}
		return &TaskMetadata{ScoreBreakdown: breakdown}, nil
	case "human_required":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid human_required %q", value)
		}
		return &TaskMetadata{HumanRequired: &v}, nil
	case "run":
		if value == "" {
			return nil, fmt.Errorf("empty run command")
		}
		return &TaskMetadata{Command: &value}, nil
	default:
		return nil, nil
	}
}

// Apply copies the present fields onto the task.
func (m *TaskMetadata) Apply(t *models.Task) {
	if m.Score != nil {
		t.Score = m.Score
	}
	if m.ScoreBreakdown != nil {
		t.ScoreBreakdown = m.ScoreBreakdown
	}
	if m.HumanRequired != nil {
		t.HumanRequired = *m.HumanRequired
	}
	if m.Command != nil {
		t.Command = *m.Command
	}
}
