package models

import (
	"context"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExportJob tracks one attempt to deliver an approved document to a
// destination. Jobs are created PENDING; the export worker moves them to
// COMPLETED or FAILED and drives the document's EXPORTING/EXPORTED
// transitions alongside.
type ExportJob struct {
	ID            string          `gorm:"primary_key;size:36" json:"id"`
	UserId        string          `gorm:"size:36;not null;index" json:"user_id"`
	DocumentId    string          `gorm:"size:36;not null;index" json:"document_id"`
	DestinationId string          `gorm:"size:36;not null;index" json:"destination_id"`
	Status        ExportJobStatus `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	Attempts      int             `gorm:"not null;default:0" json:"attempts"`
	// ArtifactUri points at the rendered export payload (storage object key)
	// for file-based destinations.
	ArtifactUri *string `gorm:"size:500" json:"artifactUri"`
	LastError   *string `gorm:"type:text" json:"lastError"`
	CreatedAt   int64   `gorm:"autoCreateTime:milli" json:"createdAt"`
	UpdatedAt   int64   `gorm:"autoUpdateTime:milli" json:"updatedAt"`
}

func CreateExportJob(tx *gorm.DB, userId, documentId, destinationId string) (*ExportJob, error) {
	job := ExportJob{
		ID:            uuid.NewString(),
		UserId:        userId,
		DocumentId:    documentId,
		DestinationId: destinationId,
		Status:        ExportJobStatusPending,
	}
	if err := tx.Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func GetExportJob(ctx context.Context, id string) (*ExportJob, error) {
	db := config.GetDB()
	var job ExportJob
	if err := db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &job, nil
}

func GetExportJobsForDocument(ctx context.Context, documentId string) ([]*ExportJob, error) {
	db := config.GetDB()
	var jobs []*ExportJob
	err := db.WithContext(ctx).
		Where("document_id = ?", documentId).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func GetPendingExportJobs(tx *gorm.DB, limit int) ([]*ExportJob, error) {
	var jobs []*ExportJob
	err := tx.
		Where("status = ?", ExportJobStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
