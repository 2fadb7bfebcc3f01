package model

import "time"

// Election is the authoritative record created by ingestion.
type Election struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"index" json:"name"`
	State        string `gorm:"index" json:"state,omitempty"`
	Municipality string `json:"municipality,omitempty"`
	Position     string `json:"position,omitempty"`
	ElectionDate string `json:"electionDate,omitempty"`
	Description  string `json:"description,omitempty"`
	Hidden       bool   `json:"hidden"`
	CreatedBy    string `json:"createdBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Candidates []Candidate `gorm:"foreignKey:ElectionID" json:"candidates,omitempty"`
}

// Candidate belongs to exactly one Election.
type Candidate struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ElectionID uint   `gorm:"index" json:"electionId"`
	Name       string `json:"name"`
	Party      string `json:"party,omitempty"`
	Votes      *int64 `json:"votes,omitempty"`
	Winner     *bool  `json:"winner,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
