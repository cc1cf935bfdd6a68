// seed-admin creates or updates the administrator account. Admins can mutate
// automation policies for any user and bypass the per-user document scope.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//   ADMIN_EMAIL=admin@example.com ADMIN_PASSWORD=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/models"
	"github.com/conrover/DocFlow/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func main() {
	email := strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))
	password := os.Getenv("ADMIN_PASSWORD")
	name := strings.TrimSpace(os.Getenv("ADMIN_NAME"))
	if email == "" || password == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_EMAIL and ADMIN_PASSWORD are required")
		os.Exit(1)
	}
	if name == "" {
		name = "Administrator"
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipUserScopeInContext(ctx, true)

	hashed, err := utils.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashedStr := string(hashed)

	var existing models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		id := uuid.NewString()
		u := models.User{
			ID:             id,
			Email:          email,
			PasswordHash:   hashedStr,
			Name:           name,
			Role:           models.UserRoleAdmin,
			InboundAddress: fmt.Sprintf("inbox_%s@inbound.docflow.io", id[:8]),
			GatewayToken:   fmt.Sprintf("df_%s", strings.ReplaceAll(uuid.NewString(), "-", "")),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: email=%q\n", email)
		return
	}

	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Updates(map[string]any{
		"password_hash": hashedStr,
		"name":          name,
		"role":          models.UserRoleAdmin,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user: email=%q\n", email)
}
