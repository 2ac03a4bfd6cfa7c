package types

import "time"

// Outcome is the terminal result of processing one DOI.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeWritten Outcome = "written"
	OutcomeFailed  Outcome = "failed"
)

// State is a step of the per-DOI state machine.
type State string

const (
	StatePending          State = "pending"
	StateExistenceChecked State = "existence_checked"
	StateFetched          State = "fetched"
	StateEnriched         State = "enriched"
	StateNormalized       State = "normalized"
	StateDedupChecked     State = "dedup_checked"
	StateWritten          State = "written"
)

// DOIResult is the structured outcome for one DOI. The CLI formats it;
// the pipeline never prints.
type DOIResult struct {
	DOI string `json:"doi" yaml:"doi"`

	Outcome Outcome `json:"outcome" yaml:"outcome"`

	// State is the last state reached before the outcome was decided.
	State State `json:"state" yaml:"state"`

	// Detail is a sanitized single-line description.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`

	// RecordID is the repository id of a written record.
	RecordID string `json:"record_id,omitempty" yaml:"record_id,omitempty"`

	// Err is the underlying error of a failure or a not-found skip.
	Err error `json:"-" yaml:"-"`

	ProcessedAt time.Time `json:"processed_at" yaml:"processed_at"`
}
