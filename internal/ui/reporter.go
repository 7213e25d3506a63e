package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/remoteds/hostingctl/internal/types"
)

// StepReporter prints step progress: an animated spinner on a terminal, plain
// sequential lines when output is piped or captured. Either way every step
// boundary is emitted immediately.
type StepReporter struct {
	host    string
	spinner *StepSpinner
}

func NewStepReporter(host string) *StepReporter {
	r := &StepReporter{host: host}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		r.spinner = NewStepSpinner(host)
	}
	return r
}

func (r *StepReporter) StartStep(name string) {
	if r.spinner != nil {
		r.spinner.Start(name)
		return
	}
	fmt.Printf("[%s] ▶ %s\n", r.host, name)
}

func (r *StepReporter) FinishStep(result types.StepResult) {
	if r.spinner != nil {
		r.spinner.Stop(result.OK)
	} else if result.OK {
		fmt.Printf("[%s] ✅ %s (%s)\n", r.host, result.Step, result.Elapsed.Round(10*time.Millisecond))
	} else {
		fmt.Printf("[%s] ❌ %s\n", r.host, result.Step)
	}

	if !result.OK && result.Detail != "" {
		fmt.Printf("[%s]    └─ %s\n", r.host, result.Detail)
	}
}
