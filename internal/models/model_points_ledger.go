package models

import "time"

type PointsEntryType string

const (
	PointsEntryTypeEarn PointsEntryType = "earn"
	PointsEntryTypeUse  PointsEntryType = "use"
)

// PointsLedgerEntry is append-only. The balance is always the derived sum of
// earns minus uses; no row is ever updated in place.
type PointsLedgerEntry struct {
	ID          string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID      string          `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	EntryType   PointsEntryType `gorm:"column:entry_type;type:varchar(8);not null" json:"entry_type"`
	Amount      int64           `gorm:"column:amount;not null" json:"amount"`
	Source      string          `gorm:"column:source;type:varchar(64)" json:"source"`
	Description string          `gorm:"column:description;type:varchar(255)" json:"description"`
	Reference   string          `gorm:"column:reference;type:varchar(64)" json:"reference"`
	ReferenceID string          `gorm:"column:reference_id;type:varchar(128)" json:"reference_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (PointsLedgerEntry) TableName() string { return "points_ledger" }
