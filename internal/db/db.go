package db

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"crmgate/internal/config"
)

// Connect opens a GORM database connection using APP_DATABASE_URL (PostgreSQL URL).
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, errors.New("APP_DATABASE_URL is required (PostgreSQL URL)")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate ensures the gateway's tables exist. Tests call it against an
// in-memory store.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Activity{},
		&IngestionProvider{},
		&APIKey{},
		&APIRequestLog{},
		&RequestLogBucket{},
		&RateBucket{},
		&Sale{},
		&Task{},
		&ContactNote{},
		&CompanyNote{},
		&DealNote{},
		&TaskNote{},
	)
}

// EnsureBootstrapAdmin makes sure there is at least one administrator
// sale corresponding to the bootstrap credentials in config. If a sale
// with that email already exists, it is left as-is.
func EnsureBootstrapAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	var count int64
	if err := db.Model(&Sale{}).Where("email = ?", cfg.AdminEmail).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &Sale{
		UserID:        uuid.NewString(),
		Email:         cfg.AdminEmail,
		FirstName:     "Admin",
		Administrator: true,
		PasswordHash:  string(hash),
	}

	return db.Create(admin).Error
}
