package model

import "encoding/json"

// BatchSubmitRequest is the body for POST /api/batches.
type BatchSubmitRequest struct {
	DisplayName     string              `json:"displayName" validate:"required,min=3,max=200"`
	UploaderEmail   string              `json:"uploaderEmail" validate:"required,email"`
	ForceHidden     bool                `json:"forceHidden"`
	StructurePrompt string              `json:"structurePrompt,omitempty" validate:"omitempty,max=20000"`
	ResponseSchema  json.RawMessage     `json:"responseSchema,omitempty"`
	Groups          []GroupSubmitInput  `json:"groups" validate:"required,min=1,max=200,dive"`
}

// GroupSubmitInput is one chunk of source rows in a submission.
type GroupSubmitInput struct {
	Municipality string            `json:"municipality,omitempty" validate:"omitempty,max=200"`
	State        string            `json:"state,omitempty" validate:"omitempty,max=100"`
	Position     string            `json:"position,omitempty" validate:"omitempty,max=200"`
	Rows         []json.RawMessage `json:"rows" validate:"required,min=1"`
}

// BatchSubmitResponse is returned after a submission is accepted.
type BatchSubmitResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
	Groups int       `json:"groups"`
}

// RunResponse is returned by the pipeline trigger endpoint.
type RunResponse struct {
	OK      bool        `json:"ok"`
	Skipped bool        `json:"skipped,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Summary interface{} `json:"summary,omitempty"`
}
