package model

import (
	"time"

	"gorm.io/datatypes"
)

// BatchJob is one logical ingestion request: a spreadsheet-sized chunk
// of raw election rows submitted for analysis, structuring and final
// ingestion. The pipeline is the only writer after submission; rows are
// kept after completion for audit.
type BatchJob struct {
	ID     string    `gorm:"primaryKey" json:"id"`
	Status JobStatus `gorm:"index" json:"status"`

	DisplayName   string `json:"displayName"`
	UploaderEmail string `json:"uploaderEmail"`
	ForceHidden   bool   `json:"forceHidden"`

	// Analyze stage
	AnalyzeBatchName   *string    `json:"analyzeBatchName,omitempty"`
	AnalyzeMode        string     `json:"analyzeMode,omitempty"`
	AnalyzeSubmittedAt *time.Time `gorm:"index" json:"analyzeSubmittedAt,omitempty"`
	AnalyzeCompletedAt *time.Time `json:"analyzeCompletedAt,omitempty"`
	AnalyzeError       *string    `json:"analyzeError,omitempty"`
	AnalyzeEmailSentAt *time.Time `json:"analyzeEmailSentAt,omitempty"`

	// Structure stage
	StructurePrompt       string         `json:"structurePrompt,omitempty"`
	ResponseSchema        datatypes.JSON `json:"responseSchema,omitempty"`
	StructureBatchName    *string        `json:"structureBatchName,omitempty"`
	StructureMode         string         `json:"structureMode,omitempty"`
	StructureModel        string         `json:"structureModel,omitempty"`
	StructureFallbackUsed bool           `json:"structureFallbackUsed"`
	StructureSubmittedAt  *time.Time     `json:"structureSubmittedAt,omitempty"`
	StructureCompletedAt  *time.Time     `json:"structureCompletedAt,omitempty"`
	StructureError        *string        `json:"structureError,omitempty"`
	EstimatedTokens       int64          `json:"estimatedTokens"`

	// Ingest stage
	IngestRequestedAt *time.Time `json:"ingestRequestedAt,omitempty"`
	IngestCompletedAt *time.Time `json:"ingestCompletedAt,omitempty"`
	IngestError       *string    `json:"ingestError,omitempty"`
	IngestEmailSentAt *time.Time `json:"ingestEmailSentAt,omitempty"`

	LastProcessedAt *time.Time `json:"lastProcessedAt,omitempty"`
	Notes           *string    `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Groups []BatchGroup `gorm:"foreignKey:JobID" json:"groups,omitempty"`
}

// BatchGroup is one independently-processable chunk of a job's input,
// typically one municipality/position slice of the source rows. Its Key
// is the correlation token for per-item batch inference results.
type BatchGroup struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	JobID string `gorm:"index" json:"jobId"`
	Key   string `json:"key"`
	Order int    `gorm:"column:sort_order" json:"order"`

	Municipality string         `json:"municipality,omitempty"`
	State        string         `json:"state,omitempty"`
	Position     string         `json:"position,omitempty"`
	Rows         datatypes.JSON `json:"rows,omitempty"`

	Status GroupStatus `gorm:"index" json:"status"`

	AnalyzeText        *string    `json:"analyzeText,omitempty"`
	AnalyzeError       *string    `json:"analyzeError,omitempty"`
	AnalyzeCompletedAt *time.Time `json:"analyzeCompletedAt,omitempty"`

	StructureText          *string        `json:"structureText,omitempty"`
	Structured             datatypes.JSON `json:"structured,omitempty"`
	StructureError         *string        `json:"structureError,omitempty"`
	StructureCompletedAt   *time.Time     `json:"structureCompletedAt,omitempty"`
	StructureTokenEstimate int64          `json:"structureTokenEstimate"`

	IngestCompletedAt *time.Time `json:"ingestCompletedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
