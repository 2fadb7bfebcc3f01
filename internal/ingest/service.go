package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ballotbase/api/internal/model"
	"github.com/ballotbase/api/internal/store"
)

// Outcome is the per-election result of one ingestion call.
type Outcome struct {
	Election   string `json:"election"`
	State      string `json:"state,omitempty"`
	Action     string `json:"action"`
	Candidates int    `json:"candidates"`
}

const (
	ActionCreated = "created"
	ActionMerged  = "merged"
)

// Service turns an aggregated structured payload into authoritative
// election and candidate records. Merging is keyed on the election's
// natural key (name/state/municipality/position), so re-running an
// ingestion after a manual job reset does not duplicate records.
type Service struct {
	db     *store.Database
	logger *zap.Logger
}

func NewService(db *store.Database, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Ingest writes every election in the payload inside one transaction
// and returns one outcome per election record processed.
func (s *Service) Ingest(ctx context.Context, payload model.ElectionsPayload, hidden bool, uploader string) ([]Outcome, error) {
	if len(payload.Elections) == 0 {
		return nil, fmt.Errorf("payload contains no elections")
	}

	outcomes := make([]Outcome, 0, len(payload.Elections))

	err := s.db.Orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range payload.Elections {
			if strings.TrimSpace(rec.Name) == "" {
				return fmt.Errorf("election record missing name")
			}

			outcome, err := s.upsertElection(tx, rec, hidden, uploader)
			if err != nil {
				return fmt.Errorf("failed to ingest election %q: %w", rec.Name, err)
			}
			outcomes = append(outcomes, outcome)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ingestion finished",
		zap.Int("elections", len(outcomes)),
		zap.String("uploader", uploader))
	return outcomes, nil
}

func (s *Service) upsertElection(tx *gorm.DB, rec model.ElectionRecord, hidden bool, uploader string) (Outcome, error) {
	var existing model.Election
	err := tx.Where("name = ? AND state = ? AND municipality = ? AND position = ?",
		rec.Name, rec.State, rec.Municipality, rec.Position).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.createElection(tx, rec, hidden, uploader)
	case err != nil:
		return Outcome{}, err
	default:
		return s.mergeElection(tx, &existing, rec)
	}
}

func (s *Service) createElection(tx *gorm.DB, rec model.ElectionRecord, hidden bool, uploader string) (Outcome, error) {
	election := model.Election{
		Name:         rec.Name,
		State:        rec.State,
		Municipality: rec.Municipality,
		Position:     rec.Position,
		ElectionDate: rec.Date,
		Description:  rec.Description,
		Hidden:       hidden,
		CreatedBy:    uploader,
	}
	for _, c := range rec.Candidates {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		election.Candidates = append(election.Candidates, model.Candidate{
			Name:   c.Name,
			Party:  c.Party,
			Votes:  c.Votes,
			Winner: c.Winner,
		})
	}

	if err := tx.Create(&election).Error; err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Election:   rec.Name,
		State:      rec.State,
		Action:     ActionCreated,
		Candidates: len(election.Candidates),
	}, nil
}

func (s *Service) mergeElection(tx *gorm.DB, existing *model.Election, rec model.ElectionRecord) (Outcome, error) {
	if existing.ElectionDate == "" && rec.Date != "" {
		existing.ElectionDate = rec.Date
	}
	if existing.Description == "" && rec.Description != "" {
		existing.Description = rec.Description
	}
	if err := tx.Save(existing).Error; err != nil {
		return Outcome{}, err
	}

	var current []model.Candidate
	if err := tx.Where("election_id = ?", existing.ID).Find(&current).Error; err != nil {
		return Outcome{}, err
	}
	known := make(map[string]struct{}, len(current))
	for _, c := range current {
		known[strings.ToLower(c.Name)] = struct{}{}
	}

	added := 0
	for _, c := range rec.Candidates {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if _, ok := known[strings.ToLower(name)]; ok {
			continue
		}
		candidate := model.Candidate{
			ElectionID: existing.ID,
			Name:       name,
			Party:      c.Party,
			Votes:      c.Votes,
			Winner:     c.Winner,
		}
		if err := tx.Create(&candidate).Error; err != nil {
			return Outcome{}, err
		}
		added++
	}

	return Outcome{
		Election:   rec.Name,
		State:      rec.State,
		Action:     ActionMerged,
		Candidates: added,
	}, nil
}
