package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/ShayCichocki/backrun/internal/engine"
	"github.com/ShayCichocki/backrun/internal/tui"
	"github.com/ShayCichocki/backrun/pkg/models"
)

// engineResult carries the run outcome between goroutines.
type engineResult struct {
	summary *engine.RunSummary
	err     error
}

// runAutoTUI runs the engine behind the interactive view. The view
// stays up after the run finishes so the outcome is readable; q or
// Ctrl+C closes it and, when the run is still going, stops it.
func runAutoTUI(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine, tasks []*models.Task, backlogPath string) (retErr error) {
	// Suppress log output while the TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runAutoTUI: %v", r)
		}
	}()

	program, _ := tui.NewProgram(backlogPath, tasks)

	runDone := make(chan engineResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				runDone <- engineResult{err: fmt.Errorf("PANIC in engine: %v", r)}
			}
		}()
		summary, err := eng.Run(ctx, tasks)
		runDone <- engineResult{summary: summary, err: err}
	}()

	// Forward engine events into the view. The event stream closes when
	// Run returns, so the final DoneMsg follows the last event.
	finished := make(chan engineResult, 1)
	go func() {
		for ev := range eng.Events() {
			program.Send(tui.EngineEventMsg{Event: ev})
		}
		res := <-runDone
		program.Send(tui.DoneMsg{Summary: res.summary, Err: res.err})
		finished <- res
	}()

	// An external signal cancels ctx; close the view too so the process
	// exits without a keypress.
	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-finished
		return fmt.Errorf("run view: %w", err)
	}

	// The user quit. Stop the engine if it is still going and collect
	// its result.
	cancel()
	res := <-finished
	return res.err
}
