package models

import "time"

// DefaultLockKey is the single lock key gating the orchestrator.
const DefaultLockKey = "video_processing"

// LockMetadata describes the work a processing lock currently covers.
type LockMetadata struct {
	VideoID             string     `json:"video_id,omitempty"`
	UserID              string     `json:"user_id,omitempty"`
	TargetDuration      int        `json:"target_duration,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// ProcessingLock is a mutual-exclusion record in the store. At most one
// row per key may be locked and unexpired at any time.
type ProcessingLock struct {
	BaseModel

	Key       string       `json:"key" gorm:"uniqueIndex;not null"`
	IsLocked  bool         `json:"is_locked" gorm:"default:false"`
	LockedBy  string       `json:"locked_by,omitempty"`
	LockedAt  *time.Time   `json:"locked_at,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Metadata  LockMetadata `json:"metadata" gorm:"type:text;serializer:json"`
}

// TableName returns the database table name.
func (ProcessingLock) TableName() string {
	return "processing_locks"
}

// IsExpired returns true when the lock is held but past its expiry.
func (l *ProcessingLock) IsExpired(now time.Time) bool {
	return l.IsLocked && l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// IsHeld returns true when the lock is held and not expired.
func (l *ProcessingLock) IsHeld(now time.Time) bool {
	return l.IsLocked && !l.IsExpired(now)
}
