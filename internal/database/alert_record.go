package database

import (
	"errors"

	"gorm.io/gorm"
)

// FindAlertRecordByAlertID returns the record keyed by the Grafana alert ID,
// or nil when no row exists.
func FindAlertRecordByAlertID(db *gorm.DB, alertID string) (*AlertRecord, error) {
	var record AlertRecord
	err := db.Where("alert_id = ?", alertID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListActiveAlertRecords returns all records whose Grafana side is still
// firing.
func ListActiveAlertRecords(db *gorm.DB) ([]AlertRecord, error) {
	var records []AlertRecord
	err := db.Where("status = ?", RecordStatusActive).Find(&records).Error
	return records, err
}

// ListBoundAlertRecords returns all records bound to an ops alert.
func ListBoundAlertRecords(db *gorm.DB) ([]AlertRecord, error) {
	var records []AlertRecord
	err := db.Where("ops_alert_id <> ''").Find(&records).Error
	return records, err
}

// CountAlertRecords returns the total and ops-bound record counts.
func CountAlertRecords(db *gorm.DB) (total, bound int64, err error) {
	if err = db.Model(&AlertRecord{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err = db.Model(&AlertRecord{}).Where("ops_alert_id <> ''").Count(&bound).Error
	return total, bound, err
}
