package consumer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/svetsrebrev/orderq/internal/order"
	"github.com/svetsrebrev/orderq/internal/utils"
)

// Handler processes one received order payload
type Handler interface {
	Handle(ctx context.Context, payload string) error
}

type HandlerFunc func(ctx context.Context, payload string) error

func (f HandlerFunc) Handle(ctx context.Context, payload string) error {
	return f(ctx, payload)
}

// Step is one simulated stage of order processing
type Step struct {
	Message string
	Pause   time.Duration

	// Optional, runs after the pause. An error aborts the remaining steps.
	Check func(payload string) error
}

// DefaultSteps is the simulated processing applied to every order, whatever its contents
var DefaultSteps = []Step{
	{Message: "Checking inventory...", Pause: 1000 * time.Millisecond},
	{Message: "Calculating shipping costs...", Pause: 300 * time.Millisecond},
	{Message: "Generating invoice...", Pause: 300 * time.Millisecond},
	{Message: "Sending confirmation to customer...", Pause: 300 * time.Millisecond},
}

// Processor stands in for real business logic: it prints a status line and pauses, step by step
type Processor struct {
	steps        []Step
	reportTotals bool
	out          io.Writer
}

func NewProcessor(steps []Step, reportTotals bool, out io.Writer) *Processor {
	if out == nil {
		out = io.Discard
	}
	return &Processor{steps: steps, reportTotals: reportTotals, out: out}
}

func (p *Processor) Handle(ctx context.Context, payload string) error {
	for _, step := range p.steps {
		fmt.Fprintf(p.out, "     → %s\n", step.Message)
		if err := utils.SleepContext(ctx, step.Pause); err != nil {
			return fmt.Errorf("interrupted while %q: %w", step.Message, err)
		}
		if step.Check != nil {
			if err := step.Check(payload); err != nil {
				return fmt.Errorf("failed while %q: %w", step.Message, err)
			}
		}
	}

	if p.reportTotals {
		o, err := order.ParsePayload([]byte(payload))
		if err != nil {
			return err
		}
		fmt.Fprintf(p.out, "     → Order total: $%.2f\n", o.Total())
	}
	return nil
}
