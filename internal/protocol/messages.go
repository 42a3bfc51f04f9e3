package protocol

import "time"

// RunStarted announces a narration run after segmentation.
type RunStarted struct {
	RunID     string    `json:"run_id"`
	JobName   string    `json:"job_name"`
	Units     int       `json:"units"`
	Timestamp time.Time `json:"timestamp"`
}

// UnitEvent reports one unit's synthesis outcome.
type UnitEvent struct {
	RunID     string    `json:"run_id"`
	UnitIndex int       `json:"unit_index"`
	Artifact  string    `json:"artifact,omitempty"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// RunCompleted reports the terminal state of a run.
type RunCompleted struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	OutputPath  string    `json:"output_path,omitempty"`
	Synthesized int       `json:"synthesized"`
	Failed      int       `json:"failed"`
	DurationMS  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectRunStarted      = "narration.run.started"
	SubjectUnitSynthesized = "narration.unit.synthesized"
	SubjectUnitFailed      = "narration.unit.failed"
	SubjectRunCompleted    = "narration.run.completed"
)
