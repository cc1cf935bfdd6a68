package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/utils"
	"github.com/google/uuid"
)

const (
	UserRoleAdmin  = "admin"
	UserRoleMember = "member"
)

// AutomationPolicy controls auto-approval for one user's documents. The
// threshold is a percentage (0-100) compared against average extraction
// confidence. Mutated only by an administrator.
type AutomationPolicy struct {
	AutoApproveEnabled   bool    `gorm:"not null;default:false" json:"autoApproveEnabled"`
	AutoApproveThreshold float64 `gorm:"not null;default:95" json:"autoApproveThreshold"`
}

type User struct {
	ID             string `gorm:"primary_key;size:36" json:"id"`
	Email          string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash   string `gorm:"size:100;not null" json:"-"`
	Name           string `gorm:"size:100;not null" json:"name"`
	Role           string `gorm:"size:10;not null;default:member" json:"role"`
	InboundAddress string `gorm:"size:255;uniqueIndex" json:"inboundAddress"`
	OrgHandle      string `gorm:"size:100" json:"orgHandle"`
	// GatewayToken authenticates the webhook/API ingestion channel ("df_" prefixed).
	GatewayToken string `gorm:"size:64;uniqueIndex" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`

	AutomationPolicy `gorm:"embedded" json:"automationPolicy"`
}

type NewUser struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Name      string `json:"name" binding:"required"`
	OrgHandle string `json:"orgHandle"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	db := config.GetDB()

	var count int64
	if err := db.WithContext(ctx).Model(&User{}).Where("email = ?", input.Email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("user already exists")
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	user := User{
		ID:           id,
		Email:        input.Email,
		PasswordHash: string(hash),
		Name:         input.Name,
		Role:         UserRoleMember,
		OrgHandle:    input.OrgHandle,
		// Unique inbound address so mail providers can route attachments
		// straight into this user's pipeline.
		InboundAddress: fmt.Sprintf("inbox_%s@inbound.docflow.io", id[:8]),
		GatewayToken:   fmt.Sprintf("df_%s", strings.ReplaceAll(uuid.NewString(), "-", "")),
		AutomationPolicy: AutomationPolicy{
			AutoApproveEnabled:   false,
			AutoApproveThreshold: 95,
		},
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func Login(ctx context.Context, email, password string) (*User, string, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, "", utils.ErrorUnauthorized
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", utils.ErrorUnauthorized
	}
	token, err := utils.JwtGenerate(user.ID, user.Role)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

func GetUser(ctx context.Context, id string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}

func GetUserByInboundAddress(ctx context.Context, address string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("inbound_address = ?", address).First(&user).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}

func GetUserByGatewayToken(ctx context.Context, token string) (*User, error) {
	if !strings.HasPrefix(token, "df_") {
		return nil, utils.ErrorUnauthorized
	}
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("gateway_token = ?", token).First(&user).Error; err != nil {
		return nil, utils.ErrorUnauthorized
	}
	return &user, nil
}

// LoadPolicy reads the owning user's automation policy at decision time
// (ingest and reprocess re-read it; stale copies are never cached).
func LoadPolicy(ctx context.Context, userId string) (AutomationPolicy, error) {
	user, err := GetUser(ctx, userId)
	if err != nil {
		return AutomationPolicy{}, err
	}
	return user.AutomationPolicy, nil
}

type UpdateAutomationPolicyInput struct {
	AutoApproveEnabled   bool    `json:"autoApproveEnabled"`
	AutoApproveThreshold float64 `json:"autoApproveThreshold" binding:"min=0,max=100"`
}

// UpdateAutomationPolicy mutates a user's policy. Admin only.
func UpdateAutomationPolicy(ctx context.Context, targetUserId string, input UpdateAutomationPolicyInput) (*User, error) {
	isAdmin, ok := utils.GetIsAdminFromContext(ctx)
	if !ok || !isAdmin {
		return nil, utils.ErrorUnauthorized
	}
	if input.AutoApproveThreshold < 0 || input.AutoApproveThreshold > 100 {
		return nil, errors.New("auto-approve threshold must be between 0 and 100")
	}

	db := config.GetDB()
	user, err := GetUser(ctx, targetUserId)
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"auto_approve_enabled":   input.AutoApproveEnabled,
		"auto_approve_threshold": input.AutoApproveThreshold,
	}).Error
	if err != nil {
		return nil, err
	}
	user.AutoApproveEnabled = input.AutoApproveEnabled
	user.AutoApproveThreshold = input.AutoApproveThreshold
	return user, nil
}
