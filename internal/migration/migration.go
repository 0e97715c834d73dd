// Package migration creates the schema on startup so local and self-hosted
// deployments work out of the box.
package migration

import (
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	billingdomain "github.com/billflow/billflow/internal/billing/domain"
	"github.com/billflow/billflow/internal/config"
	objectdomain "github.com/billflow/billflow/internal/object/domain"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	userdomain "github.com/billflow/billflow/internal/user/domain"
	"github.com/bwmarrin/snowflake"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger, genID *snowflake.Node) error {
		if err := Run(conn); err != nil {
			return err
		}
		return seedAdmin(conn, cfg, log.Named("migration"), genID)
	}),
)

// Run migrates every persistent model.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	return conn.AutoMigrate(
		&userdomain.User{},
		&objectdomain.StorageObject{},
		&usagedomain.UsageRecord{},
		&billingdomain.Invoice{},
	)
}

func seedAdmin(conn *gorm.DB, cfg config.Config, log *zap.Logger, genID *snowflake.Node) error {
	if cfg.Bootstrap.AdminPassword == "" {
		return nil
	}

	var count int64
	if err := conn.Model(&userdomain.User{}).
		Where("username = ?", cfg.Bootstrap.AdminUsername).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Bootstrap.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &userdomain.User{
		ID:           genID.Generate(),
		Username:     cfg.Bootstrap.AdminUsername,
		Email:        cfg.Bootstrap.AdminEmail,
		PasswordHash: string(hash),
		Role:         userdomain.RoleAdmin,
	}
	if err := conn.Create(admin).Error; err != nil {
		return err
	}
	log.Info("admin account seeded", zap.String("username", admin.Username))
	return nil
}
