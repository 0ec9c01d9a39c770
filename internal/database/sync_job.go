package database

import (
	"errors"

	"gorm.io/gorm"
)

// ListEnabledSyncJobs returns all enabled job definitions.
func ListEnabledSyncJobs(db *gorm.DB) ([]SyncJob, error) {
	var jobs []SyncJob
	err := db.Where("enabled = ?", true).Find(&jobs).Error
	return jobs, err
}

// ListSyncJobs returns all job definitions.
func ListSyncJobs(db *gorm.DB) ([]SyncJob, error) {
	var jobs []SyncJob
	err := db.Order("name ASC").Find(&jobs).Error
	return jobs, err
}

// FindSyncJobByName returns the job definition with the given name, or nil
// when none exists.
func FindSyncJobByName(db *gorm.DB, name string) (*SyncJob, error) {
	var job SyncJob
	err := db.Where("name = ?", name).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpsertSyncJob creates or updates a job definition by name.
func UpsertSyncJob(db *gorm.DB, name, cronExpression string, enabled bool) (*SyncJob, error) {
	existing, err := FindSyncJobByName(db, name)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		job := &SyncJob{Name: name, CronExpression: cronExpression, Enabled: enabled}
		if err := db.Create(job).Error; err != nil {
			return nil, err
		}
		return job, nil
	}
	updates := map[string]interface{}{
		"cron_expression": cronExpression,
		"enabled":         enabled,
	}
	if err := db.Model(existing).Updates(updates).Error; err != nil {
		return nil, err
	}
	return existing, nil
}
