package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account represents the accounts table.
type Account struct {
	AccountID    string `gorm:"size:10;primaryKey"`
	SecondaryID  string `gorm:"size:11;not null;uniqueIndex:uniq_accounts_secondary_id"`
	HolderName   string `gorm:"not null"`
	Email        string `gorm:"not null;default:''"`
	Phone        string `gorm:"not null;default:''"`
	Category     string `gorm:"size:16;not null"`
	PIN          string `gorm:"column:pin;size:4;not null"`
	BalanceCents int64  `gorm:"not null"`
	Position     int    `gorm:"not null;index:idx_accounts_position"`
}

func (Account) TableName() string { return "accounts" }

// AuditEntry mirrors the audit_entries table.
type AuditEntry struct {
	EntryID     string    `gorm:"size:36;primaryKey"`
	AccountID   string    `gorm:"size:10;not null;index:idx_audit_account_sequence,unique,priority:1"`
	Sequence    int64     `gorm:"not null;index:idx_audit_account_sequence,unique,priority:2"`
	Kind        string    `gorm:"size:16;not null"`
	AmountCents int64     `gorm:"not null"`
	BeforeCents int64     `gorm:"not null"`
	AfterCents  int64     `gorm:"not null"`
	Note        string    `gorm:"not null;default:''"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (AuditEntry) TableName() string { return "audit_entries" }

func (entry *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Models lists every table the store needs, for AutoMigrate.
func Models() []any {
	return []any{&Account{}, &AuditEntry{}}
}
