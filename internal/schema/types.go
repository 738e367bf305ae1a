package schema

import "time"

// CurrentVersion is the schema_version written by this build. Readers of
// older documents are canonicalized to this version before validation.
const CurrentVersion = 3

// PhaseLabel identifies one stage of the production pipeline.
type PhaseLabel string

const (
	PhaseExtraction  PhaseLabel = "phase1"
	PhaseChunking    PhaseLabel = "phase2"
	PhaseVoiceSelect PhaseLabel = "phase3"
	PhaseSynthesis   PhaseLabel = "phase4"
	PhaseEnhancement PhaseLabel = "phase5"
	PhaseASRCheck    PhaseLabel = "phase5.5"
	PhaseMastering   PhaseLabel = "phase6"
	PhaseFinalize    PhaseLabel = "phase7"
)

// OrderedPhases returns every phase label in dependency order, including
// the optional phase5.5 ASR spot-check slot.
func OrderedPhases() []PhaseLabel {
	return []PhaseLabel{
		PhaseExtraction,
		PhaseChunking,
		PhaseVoiceSelect,
		PhaseSynthesis,
		PhaseEnhancement,
		PhaseASRCheck,
		PhaseMastering,
		PhaseFinalize,
	}
}

// ChunkIDBase records whether a phase's chunk_id ordinals start at 0 or 1.
// The source mixed these inconsistently across phases (spec Open Question
// 1); this module fixes and documents one base per phase.
type ChunkIDBase int

const (
	ZeroBased ChunkIDBase = 0
	OneBased  ChunkIDBase = 1
)

// ChunkIDBaseForPhase is the authoritative, validated base per phase.
// Synthesis chunk ids are one-based (matching the source TTS engines'
// existing numbering); enhancement chunk ids are zero-based (they index
// directly into the synthesis output array).
func ChunkIDBaseForPhase(phase PhaseLabel) ChunkIDBase {
	switch phase {
	case PhaseSynthesis:
		return OneBased
	case PhaseEnhancement:
		return ZeroBased
	default:
		return ZeroBased
	}
}

// PhaseStatus is the completion status of a PhaseBlock.
type PhaseStatus string

const (
	StatusPending   PhaseStatus = "pending"
	StatusRunning   PhaseStatus = "running"
	StatusSuccess   PhaseStatus = "success"
	StatusFailed    PhaseStatus = "failed"
	StatusSkipped   PhaseStatus = "skipped"
	StatusReused    PhaseStatus = "reused"
	StatusCancelled PhaseStatus = "cancelled"
)

// ChunkStatus is the lifecycle status of a ChunkRecord.
type ChunkStatus string

const (
	ChunkPending  ChunkStatus = "pending"
	ChunkSuccess  ChunkStatus = "success"
	ChunkFailed   ChunkStatus = "failed"
	ChunkRepaired ChunkStatus = "repaired"
)

// EngineName identifies a synthesis or enhancement engine.
type EngineName string

// OverrideSource records who proposed an override.
type OverrideSource string

const (
	SourceBaseline   OverrideSource = "baseline"
	SourceUser       OverrideSource = "user"
	SourceAdvisor    OverrideSource = "advisor"
	SourceSelfDriven OverrideSource = "self_driving"
	SourceExperiment OverrideSource = "experiment"
)

// OverrideTTL controls whether an OverrideEntry survives past the run that
// created it.
type OverrideTTL string

const (
	TTLSingleRun  OverrideTTL = "single_run"
	TTLPersistent OverrideTTL = "persistent"
)

// LearningMode controls how far the advisor (C6) may act on its own
// recommendations.
type LearningMode string

const (
	ModeObserve    LearningMode = "observe"
	ModeRecommend  LearningMode = "recommend"
	ModeSupervised LearningMode = "supervised"
	ModeAutonomous LearningMode = "autonomous"
)

// FailureCategory is the error taxonomy from spec.md §7.
type FailureCategory string

const (
	CategoryBusy            FailureCategory = "busy"
	CategoryIoError         FailureCategory = "io_error"
	CategoryTimeout         FailureCategory = "timeout"
	CategoryInvalidPatch    FailureCategory = "invalid_patch"
	CategoryChildExit       FailureCategory = "child_exit"
	CategoryArtifactMissing FailureCategory = "artifact_missing"
	CategoryChunkFailure    FailureCategory = "chunk_failure"
	CategoryCancelled       FailureCategory = "cancelled"
	CategorySafetyBlocked   FailureCategory = "safety_blocked"
	CategoryCorruptState    FailureCategory = "corrupt_state"
)

// Retriable reports whether a category is eligible for retry per the
// taxonomy table in spec.md §7.
func (c FailureCategory) Retriable() bool {
	switch c {
	case CategoryBusy, CategoryIoError, CategoryTimeout, CategoryArtifactMissing, CategoryChunkFailure:
		return true
	case CategoryChildExit:
		return true // retried as-is; no caller classifies it further
	default:
		return false
	}
}

// Source describes the input file a PipelineState was created from.
type Source struct {
	Path      string `json:"path"`
	Hash      string `json:"source_hash"`
	MIMEClass string `json:"mime_class"`
	SizeBytes int64  `json:"size_bytes"`
}

// Runtime holds in-flight counters for a single run.
type Runtime struct {
	CurrentPhase  PhaseLabel     `json:"current_phase,omitempty"`
	RetryCounts   map[string]int `json:"retry_counts,omitempty"`
	HeartbeatAt   time.Time      `json:"heartbeat_at,omitempty"`
	PID           int            `json:"pid,omitempty"`
	LastError     *ErrorDetail   `json:"last_error,omitempty"`
	CancelRequested bool         `json:"cancel_requested,omitempty"`
}

// ErrorDetail is a categorized, truncated failure description.
type ErrorDetail struct {
	Category FailureCategory `json:"category"`
	Message  string          `json:"message"`
	Trace    string          `json:"trace,omitempty"`
}

// BatchRun records one batch invocation that touched this book.
type BatchRun struct {
	BatchID   string    `json:"batch_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
}

// OverrideEntry is a single parameter override, transient unless its TTL is
// persistent (only possible under ModeAutonomous).
type OverrideEntry struct {
	TargetPhase PhaseLabel     `json:"target_phase"`
	Parameter   string         `json:"parameter"`
	Value       interface{}    `json:"value"`
	Source      OverrideSource `json:"source"`
	Reason      string         `json:"reason,omitempty"`
	TTL         OverrideTTL    `json:"ttl"`
}

// FailureRecord is provenance for one failed attempt on a chunk.
type FailureRecord struct {
	Category  FailureCategory `json:"category"`
	Phase     PhaseLabel      `json:"phase"`
	Attempt   int             `json:"attempt"`
	Engine    EngineName      `json:"engine,omitempty"`
	Params    map[string]any  `json:"params,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Message   string          `json:"message"`
	LogRef    string          `json:"log_ref,omitempty"`
}

// ChunkRecord is a single resumable unit of work inside a chunked phase.
type ChunkRecord struct {
	ChunkID         int             `json:"chunk_id"`
	Status          ChunkStatus     `json:"status"`
	TextHash        string          `json:"text_hash,omitempty"`
	ArtifactPath    string          `json:"artifact_path,omitempty"`
	ArtifactHash    string          `json:"artifact_hash,omitempty"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	Failures        []FailureRecord `json:"failures,omitempty"`
	RepairedFrom    string          `json:"repaired_from,omitempty"` // original artifact path, if repaired
}

// PhaseBlock is the per-phase state stored under PipelineState.Phases.
type PhaseBlock struct {
	Status      PhaseStatus        `json:"status"`
	StartedAt   time.Time          `json:"started_at,omitempty"`
	EndedAt     time.Time          `json:"ended_at,omitempty"`
	DurationMS  int64              `json:"duration_ms,omitempty"`
	Attempt     int                `json:"attempt"`
	LastError   *ErrorDetail       `json:"last_error,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Artifacts   []ArtifactRef      `json:"artifacts,omitempty"`
	InputsHash  string             `json:"inputs_hash,omitempty"`
	Chunks      map[int]*ChunkRecord `json:"chunks,omitempty"`
	ChunkOrder  []int              `json:"-"` // derived, not serialized directly
}

// ArtifactRef is a produced file reference with size and content hash.
type ArtifactRef struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash string `json:"hash,omitempty"`
}

// PipelineState is the root, versioned state document for one book.
type PipelineState struct {
	SchemaVersion int                        `json:"schema_version"`
	FileID        string                     `json:"file_id"`
	Source        Source                     `json:"source"`
	Phases        map[PhaseLabel]*PhaseBlock `json:"phases"`
	Overrides     []OverrideEntry            `json:"overrides"`
	Runtime       Runtime                    `json:"runtime"`
	BatchRuns     []BatchRun                 `json:"batch_runs,omitempty"`

	// Legacy preserves unknown fields encountered during canonicalization
	// of an earlier schema version, per spec.md §4.2 ("never silently
	// dropped").
	Legacy map[string]interface{} `json:"legacy,omitempty"`
}

// NewPipelineState returns a freshly initialized state document for fileID.
func NewPipelineState(fileID string, src Source) *PipelineState {
	return &PipelineState{
		SchemaVersion: CurrentVersion,
		FileID:        fileID,
		Source:        src,
		Phases:        make(map[PhaseLabel]*PhaseBlock),
		Overrides:     []OverrideEntry{},
		Runtime:       Runtime{RetryCounts: make(map[string]int)},
	}
}

// SortedChunkIDs returns a PhaseBlock's chunk ids in ascending order,
// satisfying the P3 chunk-order-preservation invariant.
func (b *PhaseBlock) SortedChunkIDs() []int {
	ids := make([]int, 0, len(b.Chunks))
	for id := range b.Chunks {
		ids = append(ids, id)
	}
	// insertion sort is adequate: chunk counts are in the low thousands at most
	for i := 1; i < len(ids); i++ {
		v := ids[i]
		j := i - 1
		for j >= 0 && ids[j] > v {
			ids[j+1] = ids[j]
			j--
		}
		ids[j+1] = v
	}
	return ids
}

// TelemetryEvent enumerates the event kinds appended to the telemetry log
// (C8).
type TelemetryEvent string

const (
	EventStart          TelemetryEvent = "start"
	EventEnd            TelemetryEvent = "end"
	EventRetry          TelemetryEvent = "phase_retry"
	EventFailure        TelemetryEvent = "failure"
	EventRecommendation TelemetryEvent = "recommendation"
	EventOverrideApplied TelemetryEvent = "override_applied"
	EventSafetyBlocked  TelemetryEvent = "safety_blocked"
	EventRepair         TelemetryEvent = "repair"
)

// TelemetryRecord is one append-only structured event.
type TelemetryRecord struct {
	Timestamp       time.Time          `json:"timestamp"`
	FileID          string             `json:"file_id"`
	Phase           PhaseLabel         `json:"phase,omitempty"`
	Event           TelemetryEvent     `json:"event"`
	Status          PhaseStatus        `json:"status,omitempty"`
	DurationMS      int64              `json:"duration_ms,omitempty"`
	MetricsSnapshot map[string]float64 `json:"metrics_snapshot,omitempty"`
	HostLoad        HostLoad           `json:"host_load,omitempty"`
	Message         string             `json:"message,omitempty"`
}

// HostLoad samples coarse host utilization at event time.
type HostLoad struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}
