// Package pipeline holds the append-only step log an invoice accumulates on
// its way from payment detection to completion.
package pipeline

import (
	"fmt"
	"time"

	"coinvoice/internal/shared/biztime"
)

// StepKind identifies a pipeline stage. Kinds are appended in a fixed total
// order; CONVERTED and CASHED_OUT may be skipped depending on the invoice's
// settlement target.
type StepKind string

const (
	StepDetected  StepKind = "DETECTED"
	StepConverted StepKind = "CONVERTED"
	StepSettled   StepKind = "SETTLED"
	StepCashedOut StepKind = "CASHED_OUT"
	StepCompleted StepKind = "COMPLETED"
)

// stepOrder is the fixed total order of step kinds.
var stepOrder = map[StepKind]int{
	StepDetected:  0,
	StepConverted: 1,
	StepSettled:   2,
	StepCashedOut: 3,
	StepCompleted: 4,
}

func (k StepKind) IsValid() bool {
	_, ok := stepOrder[k]
	return ok
}

// Order returns the kind's position in the fixed total order.
func (k StepKind) Order() int {
	return stepOrder[k]
}

func (k StepKind) String() string {
	return string(k)
}

// StepOutcome is the result recorded with a step entry.
type StepOutcome string

const (
	OutcomeSuccess  StepOutcome = "success"
	OutcomeFailure  StepOutcome = "failure"
	OutcomeRetrying StepOutcome = "retrying"
)

func (o StepOutcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeRetrying:
		return true
	default:
		return false
	}
}

// Step is one append-only log entry. Retrying entries carry the attempt
// count and the earliest time the next attempt may run.
type Step struct {
	id          uint
	invoiceID   uint
	kind        StepKind
	outcome     StepOutcome
	attempt     int
	detail      string
	nextRetryAt *time.Time
	createdAt   time.Time
}

func NewStep(invoiceID uint, kind StepKind, outcome StepOutcome, attempt int, detail string) (*Step, error) {
	if invoiceID == 0 {
		return nil, fmt.Errorf("invoice ID is required")
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid step kind: %s", kind)
	}
	if !outcome.IsValid() {
		return nil, fmt.Errorf("invalid step outcome: %s", outcome)
	}
	if attempt < 0 {
		return nil, fmt.Errorf("attempt cannot be negative")
	}
	return &Step{
		invoiceID: invoiceID,
		kind:      kind,
		outcome:   outcome,
		attempt:   attempt,
		detail:    detail,
		createdAt: biztime.NowUTC(),
	}, nil
}

// ScheduleRetry stamps the earliest time the next attempt may run.
func (s *Step) ScheduleRetry(at time.Time) {
	s.nextRetryAt = &at
}

func (s *Step) ID() uint {
	return s.id
}

func (s *Step) InvoiceID() uint {
	return s.invoiceID
}

func (s *Step) Kind() StepKind {
	return s.kind
}

func (s *Step) Outcome() StepOutcome {
	return s.outcome
}

func (s *Step) Attempt() int {
	return s.attempt
}

func (s *Step) Detail() string {
	return s.detail
}

func (s *Step) NextRetryAt() *time.Time {
	return s.nextRetryAt
}

func (s *Step) CreatedAt() time.Time {
	return s.createdAt
}

// SetID sets the numeric ID after persistence (used by the repository).
func (s *Step) SetID(stepID uint) {
	s.id = stepID
}

// ReconstructParams carries every persisted field of a step.
type ReconstructParams struct {
	ID          uint
	InvoiceID   uint
	Kind        StepKind
	Outcome     StepOutcome
	Attempt     int
	Detail      string
	NextRetryAt *time.Time
	CreatedAt   time.Time
}

// Reconstruct rebuilds a Step from persistence without validation.
func Reconstruct(p ReconstructParams) *Step {
	return &Step{
		id:          p.ID,
		invoiceID:   p.InvoiceID,
		kind:        p.Kind,
		outcome:     p.Outcome,
		attempt:     p.Attempt,
		detail:      p.Detail,
		nextRetryAt: p.NextRetryAt,
		createdAt:   p.CreatedAt,
	}
}

// Predecessors returns the step kinds that must have succeeded before kind
// may be appended, given which optional stages apply to the invoice.
func Predecessors(kind StepKind, needsConversion, fiatPayout bool) []StepKind {
	var required []StepKind
	for _, k := range []StepKind{StepDetected, StepConverted, StepSettled, StepCashedOut} {
		if k.Order() >= kind.Order() {
			break
		}
		if k == StepConverted && !needsConversion {
			continue
		}
		if k == StepCashedOut && !fiatPayout {
			continue
		}
		required = append(required, k)
	}
	return required
}

// ValidateAppend checks that appending a success entry of the given kind
// preserves the causal order over the existing log.
func ValidateAppend(log []*Step, kind StepKind, needsConversion, fiatPayout bool) error {
	succeeded := make(map[StepKind]bool)
	for _, s := range log {
		if s.Outcome() == OutcomeSuccess {
			succeeded[s.Kind()] = true
		}
	}
	for _, required := range Predecessors(kind, needsConversion, fiatPayout) {
		if !succeeded[required] {
			return fmt.Errorf("step %s requires a successful %s entry first", kind, required)
		}
	}
	return nil
}
