package constants

// RunState is the canonical state of a pipeline run.
type RunState string

// Stable values (stored as-is in pipeline_runs.state).
const (
	StateReceived        RunState = "RECEIVED"
	StateClassified      RunState = "CLASSIFIED"
	StateTextExtracted   RunState = "TEXT_EXTRACTED"
	StateFieldsExtracted RunState = "FIELDS_EXTRACTED"
	StateNamed           RunState = "NAMED"
	StatePublished       RunState = "PUBLISHED"
	StateLogged          RunState = "LOGGED"
	StateDone            RunState = "DONE"
	StateFailed          RunState = "FAILED" // absorbing
)

// Terminal reports whether no further transitions can follow s.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Stage names a pipeline step; used in logs, outcomes and the run journal.
type Stage string

const (
	StageClassify  Stage = "classify"
	StageRasterize Stage = "rasterize"
	StageOCR       Stage = "ocr"
	StageExtract   Stage = "extract"
	StageName      Stage = "name"
	StagePublish   Stage = "publish"
	StageLedger    Stage = "ledger"
)
