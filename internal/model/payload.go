package model

// ElectionsPayload is the structured shape the inference service is
// constrained to produce for each group, and the aggregate handed to
// the ingestion service.
type ElectionsPayload struct {
	Elections []ElectionRecord `json:"elections"`
}

// ElectionRecord is one election extracted from the source rows.
type ElectionRecord struct {
	Name         string            `json:"name"`
	State        string            `json:"state,omitempty"`
	Municipality string            `json:"municipality,omitempty"`
	Position     string            `json:"position,omitempty"`
	Date         string            `json:"date,omitempty"`
	Description  string            `json:"description,omitempty"`
	Candidates   []CandidateRecord `json:"candidates"`
}

// CandidateRecord is one candidate line within an election.
type CandidateRecord struct {
	Name   string `json:"name"`
	Party  string `json:"party,omitempty"`
	Votes  *int64 `json:"votes,omitempty"`
	Winner *bool  `json:"winner,omitempty"`
}
