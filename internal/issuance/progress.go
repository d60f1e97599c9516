package issuance

// Stage is the issuance state machine position. Error is reachable from any
// non-terminal stage; complete and error are terminal.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageUploading  Stage = "uploading"
	StageMinting    Stage = "minting"
	StageConfirming Stage = "confirming"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// UploadPhase subdivides the uploading stage.
type UploadPhase string

const (
	PhasePreparing         UploadPhase = "preparing"
	PhaseUploadingImage    UploadPhase = "uploading_image"
	PhaseCreatingMetadata  UploadPhase = "creating_metadata"
	PhaseUploadingMetadata UploadPhase = "uploading_metadata"
	PhaseUploadComplete    UploadPhase = "complete"
)

// UploadProgress is the sub-progress payload emitted while uploading.
type UploadProgress struct {
	Phase   UploadPhase `json:"phase"`
	Percent int         `json:"percent"`
}

// Progress is one snapshot of an in-flight issuance. Fields beyond Stage and
// Message are populated only where the stage defines them: Upload during
// uploading, TxHash from confirming onward, TokenID and Ambiguous at complete.
type Progress struct {
	Stage     Stage           `json:"stage"`
	Message   string          `json:"message,omitempty"`
	Upload    *UploadProgress `json:"upload,omitempty"`
	TxHash    string          `json:"txHash,omitempty"`
	TokenID   *uint64         `json:"tokenId,omitempty"`
	Ambiguous bool            `json:"ambiguous,omitempty"`
}

// ProgressFunc receives each snapshot. It runs on the issuing goroutine, so
// implementations should return quickly.
type ProgressFunc func(Progress)
