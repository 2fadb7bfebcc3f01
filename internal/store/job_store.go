package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/ballotbase/api/internal/model"
)

// CreateJob persists a new job together with its groups.
func (db *Database) CreateJob(ctx context.Context, job *model.BatchJob) error {
	tx := db.Orm.WithContext(ctx).Create(job)
	return tx.Error
}

// GetJob retrieves a job with its groups ordered by sort_order.
func (db *Database) GetJob(ctx context.Context, id string) (*model.BatchJob, error) {
	var job model.BatchJob
	tx := db.Orm.WithContext(ctx).
		Preload("Groups", func(q *gorm.DB) *gorm.DB {
			return q.Order("sort_order asc")
		}).
		First(&job, "id = ?", id)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &job, nil
}

// JobsByStatus lists jobs in the given status, oldest first, bounded by limit.
func (db *Database) JobsByStatus(ctx context.Context, status model.JobStatus, limit int) ([]model.BatchJob, error) {
	var jobs []model.BatchJob
	tx := db.Orm.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at asc").
		Limit(limit).
		Find(&jobs)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return jobs, nil
}

// RecentJobs lists the most recently created jobs across all statuses.
func (db *Database) RecentJobs(ctx context.Context, limit int) ([]model.BatchJob, error) {
	var jobs []model.BatchJob
	tx := db.Orm.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&jobs)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return jobs, nil
}

// SaveJob writes back every field of the job record.
func (db *Database) SaveJob(ctx context.Context, job *model.BatchJob) error {
	tx := db.Orm.WithContext(ctx).Omit("Groups").Save(job)
	return tx.Error
}

// GroupsByJob returns the job's groups in submission order, optionally
// filtered to a status set.
func (db *Database) GroupsByJob(ctx context.Context, jobID string, statuses ...model.GroupStatus) ([]model.BatchGroup, error) {
	var groups []model.BatchGroup
	q := db.Orm.WithContext(ctx).Where("job_id = ?", jobID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	tx := q.Order("sort_order asc").Find(&groups)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return groups, nil
}

// SaveGroup writes back every field of the group record.
func (db *Database) SaveGroup(ctx context.Context, group *model.BatchGroup) error {
	tx := db.Orm.WithContext(ctx).Save(group)
	return tx.Error
}

// SumEstimatedTokens sums the token estimates of jobs in the given
// statuses. Feeds the admission-control check.
func (db *Database) SumEstimatedTokens(ctx context.Context, statuses []model.JobStatus) (int64, error) {
	var total int64
	tx := db.Orm.WithContext(ctx).
		Model(&model.BatchJob{}).
		Where("status IN ?", statuses).
		Select("COALESCE(SUM(estimated_tokens), 0)").
		Scan(&total)
	if tx.Error != nil {
		return 0, tx.Error
	}
	return total, nil
}
