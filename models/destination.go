package models

import (
	"context"
	"errors"
	"time"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/utils"
	"github.com/google/uuid"
)

// Destination is a per-user export target (ERP connector, webhook or flat file).
type Destination struct {
	ID        string          `gorm:"primary_key;size:36" json:"id"`
	UserId    string          `gorm:"size:36;not null;index" json:"user_id"`
	Name      string          `gorm:"size:100;not null" json:"name"`
	Type      DestinationType `gorm:"size:20;not null" json:"type"`
	// Endpoint is the webhook URL for webhook destinations; connector
	// destinations keep their credentials out of band.
	Endpoint  string    `gorm:"size:500" json:"endpoint"`
	Enabled   bool      `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

type NewDestination struct {
	Name     string `json:"name" binding:"required"`
	Type     string `json:"type" binding:"required"`
	Endpoint string `json:"endpoint"`
}

func CreateDestination(ctx context.Context, input *NewDestination) (*Destination, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.ErrorUnauthorized
	}
	destType := DestinationType(input.Type)
	if !destType.IsValid() {
		return nil, errors.New("unknown destination type")
	}
	if destType == DestinationTypeWebhook && input.Endpoint == "" {
		return nil, errors.New("webhook destinations require an endpoint")
	}

	dest := Destination{
		ID:       uuid.NewString(),
		UserId:   userId,
		Name:     input.Name,
		Type:     destType,
		Endpoint: input.Endpoint,
		Enabled:  true,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&dest).Error; err != nil {
		return nil, err
	}
	return &dest, nil
}

func GetDestination(ctx context.Context, id string) (*Destination, error) {
	db := config.GetDB()
	var dest Destination
	if err := db.WithContext(ctx).First(&dest, "id = ?", id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &dest, nil
}

func GetDestinations(ctx context.Context) ([]*Destination, error) {
	db := config.GetDB()
	var dests []*Destination
	if err := db.WithContext(ctx).Order("created_at ASC").Find(&dests).Error; err != nil {
		return nil, err
	}
	return dests, nil
}

func DeleteDestination(ctx context.Context, id string) error {
	db := config.GetDB()
	result := db.WithContext(ctx).Delete(&Destination{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
