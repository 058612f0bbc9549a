// Package backlog parses Markdown backlog documents into task records.
// The backlog is a pipe-delimited table with per-row metadata carried in
// HTML comments immediately following the row.
package backlog

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// headerCells is the required backlog table header, in order.
var headerCells = []string{
	"id", "title", "priority", "points", "status",
	"problem/outcome", "tech footprint", "dependencies",
}

var (
	commentRe     = regexp.MustCompile(`<!--(.*?)-->`)
	commentOnlyRe = regexp.MustCompile(`^(?:<!--.*?-->\s*)+$`)
	separatorRe   = regexp.MustCompile(`^:?-+:?$`)
)

// Warning describes a non-fatal problem found while parsing.
type Warning struct {
	// Line is the 1-based line number the problem was found on.
	Line int
	// Message describes the problem.
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// Source yields task snapshots for a run. The engine never reads the
// backlog document itself; it consumes snapshots from a Source.
type Source interface {
	Load() ([]*models.Task, []Warning, error)
}

// FileSource loads the backlog from a file on disk.
type FileSource struct {
	Path string
}

// Load reads and parses the backlog file. Only the read can fail;
// malformed content is reported through warnings.
func (s *FileSource) Load() ([]*models.Task, []Warning, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("read backlog: %w", err)
	}
	tasks, warnings := Parse(string(data))
	return tasks, warnings, nil
}

var _ Source = (*FileSource)(nil)

// Parse converts backlog document text into task records. Malformed
// rows are skipped and reported as warnings rather than aborting the
// parse. Parsing is pure: the same text always yields the same tasks
// in the same order.
func Parse(text string) ([]*models.Task, []Warning) {
	p := &parser{seen: make(map[string]bool)}
	for i, line := range strings.Split(text, "\n") {
		p.line(i+1, line)
	}
	return p.tasks, p.warnings
}

// parser holds the line-by-line state of a single Parse call.
type parser struct {
	tasks    []*models.Task
	warnings []Warning

	seen    map[string]bool
	inTable bool
	sepSeen bool
	// last is the most recently parsed row, the attachment target for
	// metadata comments. Cleared by any line that is neither a table
	// row nor a comment.
	last *models.Task
}

func (p *parser) warnf(line int, format string, args ...interface{}) {
	p.warnings = append(p.warnings, Warning{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (p *parser) line(n int, raw string) {
	trimmed := strings.TrimSpace(raw)

	// Lines that are only HTML comments carry metadata for the
	// preceding row.
	if trimmed != "" && commentOnlyRe.MatchString(trimmed) {
		for _, body := range commentBodies(trimmed) {
			p.applyComment(n, body)
		}
		return
	}

	inline := commentBodies(trimmed)
	stripped := strings.TrimSpace(commentRe.ReplaceAllString(trimmed, ""))

	if !strings.HasPrefix(stripped, "|") {
		// Prose or a blank line ends the current table.
		p.inTable = false
		p.sepSeen = false
		p.last = nil
		return
	}

	cells := splitRow(stripped)

	if !p.inTable {
		// Rows belonging to unrelated tables are ignored.
		if isHeader(cells) {
			p.inTable = true
			p.sepSeen = false
		}
		return
	}

	if !p.sepSeen {
		p.sepSeen = true
		if isSeparator(cells) {
			return
		}
		// Header without a separator row: fall through and treat this
		// line as data.
	}

	p.last = nil
	task := p.parseRow(n, cells)
	if task == nil {
		return
	}
	task.DocOrder = len(p.tasks)
	p.tasks = append(p.tasks, task)
	p.seen[task.ID] = true
	p.last = task

	for _, body := range inline {
		p.applyComment(n, body)
	}
}

// parseRow converts one data row into a task, or returns nil with a
// warning recorded if the row is malformed.
func (p *parser) parseRow(n int, cells []string) *models.Task {
	if len(cells) != len(headerCells) {
		p.warnf(n, "expected %d columns, got %d; row skipped", len(headerCells), len(cells))
		return nil
	}

	id := cells[0]
	if id == "" {
		p.warnf(n, "row has no id; row skipped")
		return nil
	}
	if p.seen[id] {
		p.warnf(n, "duplicate task id %s; row skipped", id)
		return nil
	}

	priority, ok := models.ParsePriority(cells[2])
	if !ok {
		p.warnf(n, "task %s has unknown priority %q; row skipped", id, cells[2])
		return nil
	}

	task := &models.Task{
		ID:            id,
		Title:         cells[1],
		Priority:      priority,
		Description:   cells[5],
		TechFootprint: cells[6],
		Status:        models.TaskStatusPending,
	}

	if pts := normalizeCell(cells[3]); pts != "" {
		v, err := strconv.Atoi(pts)
		if err != nil {
			p.warnf(n, "task %s has non-numeric points %q", id, cells[3])
		} else {
			task.Points = v
		}
	}

	if st := normalizeCell(cells[4]); st != "" {
		status := models.TaskStatus(strings.ToLower(st))
		if status.Valid() {
			task.Status = status
		} else {
			p.warnf(n, "task %s has unknown status %q; defaulting to pending", id, cells[4])
		}
	}

	task.DependsOn = parseDependencies(cells[7])
	return task
}

func (p *parser) applyComment(n int, body string) {
	meta, err := parseMetadata(body)
	if err != nil {
		p.warnf(n, "%v", err)
		return
	}
	if meta == nil {
		// Not backlog metadata; authors may comment out anything.
		return
	}
	if p.last == nil {
		p.warnf(n, "metadata comment has no preceding task row")
		return
	}
	meta.Apply(p.last)
}

// commentBodies extracts the trimmed bodies of every HTML comment on
// the line, in order.
func commentBodies(line string) []string {
	matches := commentRe.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}
	bodies := make([]string, 0, len(matches))
	for _, m := range matches {
		bodies = append(bodies, strings.TrimSpace(m[1]))
	}
	return bodies
}

// splitRow splits a pipe-table line into trimmed cells, dropping the
// outer pipes.
func splitRow(line string) []string {
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, part := range parts {
		cells[i] = strings.TrimSpace(part)
	}
	return cells
}

func isHeader(cells []string) bool {
	if len(cells) != len(headerCells) {
		return false
	}
	for i, want := range headerCells {
		if strings.ToLower(cells[i]) != want {
			return false
		}
	}
	return true
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		if !separatorRe.MatchString(c) {
			return false
		}
	}
	return len(cells) > 0
}

// normalizeCell maps the conventional empty-cell spellings to "".
func normalizeCell(cell string) string {
	switch strings.ToLower(cell) {
	case "", "-", "—", "none", "n/a":
		return ""
	default:
		return cell
	}
}

// parseDependencies splits a dependency cell into a deduplicated list
// of task IDs, preserving document order.
func parseDependencies(cell string) []string {
	if normalizeCell(cell) == "" {
		return nil
	}

	var deps []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(cell, ",") {
		dep := strings.TrimSpace(part)
		if dep == "" || seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}
	return deps
}
