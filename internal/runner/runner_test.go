package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/backrun/pkg/models"
)

func TestCommandRunner_Run(t *testing.T) {
	r := NewCommandRunner("", 0)
	task := &models.Task{ID: "T-1", Title: "Say hello", Command: "echo hello"}

	output, err := r.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(output) != "hello" {
		t.Errorf("output = %q, want %q", output, "hello")
	}
}

func TestCommandRunner_Run_Failure(t *testing.T) {
	r := NewCommandRunner("", 0)
	task := &models.Task{ID: "T-1", Title: "Fail", Command: "echo oops; exit 3"}

	output, err := r.Run(context.Background(), task)
	if err == nil {
		t.Fatal("Run succeeded, want error for non-zero exit")
	}
	if !strings.Contains(output, "oops") {
		t.Errorf("output = %q, want it to contain command output", output)
	}
}

func TestCommandRunner_EmptyCommand(t *testing.T) {
	r := NewCommandRunner("", 0)
	task := &models.Task{ID: "T-1", Title: "Documentation only"}

	output, err := r.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if output != "" {
		t.Errorf("output = %q, want empty for task without command", output)
	}
}

func TestCommandRunner_WorkDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("present"), 0644); err != nil {
		t.Fatalf("failed to write marker: %v", err)
	}

	r := NewCommandRunner(dir, 0)
	task := &models.Task{ID: "T-1", Title: "Read marker", Command: "cat marker.txt"}

	output, err := r.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(output) != "present" {
		t.Errorf("output = %q, want %q", output, "present")
	}
}

func TestCommandRunner_Timeout(t *testing.T) {
	r := NewCommandRunner("", 50*time.Millisecond)
	task := &models.Task{ID: "T-1", Title: "Hang", Command: "sleep 2"}

	_, err := r.Run(context.Background(), task)
	if err == nil {
		t.Fatal("Run succeeded, want timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run error = %v, want context.DeadlineExceeded in chain", err)
	}
}

func TestNoopRunner(t *testing.T) {
	r := &NoopRunner{}
	output, err := r.Run(context.Background(), &models.Task{ID: "T-1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if output != "" {
		t.Errorf("output = %q, want empty", output)
	}
	if r.Name() != "noop" {
		t.Errorf("Name() = %q, want noop", r.Name())
	}
}

func TestBuildPrompt(t *testing.T) {
	score := 5.0
	task := &models.Task{
		ID:            "B-007",
		Title:         "Wire up the importer",
		Description:   "Connect the CSV importer to the new pipeline",
		TechFootprint: "go, csv",
		Score:         &score,
	}

	prompt := buildPrompt(task)
	for _, want := range []string{"B-007", "Wire up the importer", "Connect the CSV importer", "go, csv"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock(anthropic.ModelClaudeSonnet4_20250514)
	if !strings.HasPrefix(string(got), "us.anthropic.") {
		t.Errorf("translateModelForBedrock = %q, want us.anthropic. prefix", got)
	}

	custom := anthropic.Model("us.anthropic.claude-custom-v1:0")
	if got := translateModelForBedrock(custom); got != custom {
		t.Errorf("translateModelForBedrock(%q) = %q, want unchanged", custom, got)
	}
}

func TestTokenTracker(t *testing.T) {
	tracker := NewTokenTracker()
	tracker.Add(1000, 500)
	tracker.Add(2000, 1500)

	input, output := tracker.Total()
	if input != 3000 || output != 2000 {
		t.Errorf("Total() = (%d, %d), want (3000, 2000)", input, output)
	}
	if tracker.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", tracker.Calls())
	}
	if tracker.Cost() <= 0 {
		t.Errorf("Cost() = %v, want positive", tracker.Cost())
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("\n\nFAILED: no database\nmore detail"); got != "FAILED: no database" {
		t.Errorf("firstLine = %q, want %q", got, "FAILED: no database")
	}
}
