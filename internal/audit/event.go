package audit

import "time"

// Decision names the terminal outcome a protocol handler recorded. These
// mirror the NLM4 status vocabulary plus the two outcomes that never reach
// the wire as a status code (NOTIFY dispatch, GC retirement).
type Decision string

const (
	DecisionGranted      Decision = "granted"
	DecisionDenied       Decision = "denied"
	DecisionBlocked      Decision = "blocked"
	DecisionDeniedNoLock Decision = "denied_nolocks"
	DecisionDeniedGrace  Decision = "denied_grace_period"
	DecisionNotify       Decision = "notify"
	DecisionGCRetired    Decision = "gc_retired"
)

// Event is one row of the audit trail. Stored as-is via gorm; TableName
// below pins it to lock_events regardless of the struct's Go name.
type Event struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	OccurredAt time.Time `gorm:"not null;index"`
	Decision   string    `gorm:"not null"`
	Sysid      uint32    `gorm:"not null;index"`
	CallerName string    `gorm:"not null"`
	FileHandle string    `gorm:"not null"`
	Detail     string    `gorm:"not null;default:''"`
}

// TableName pins the model to the table the golang-migrate schema creates.
func (Event) TableName() string {
	return "lock_events"
}
