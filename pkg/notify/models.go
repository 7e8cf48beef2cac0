// Package notify persists notification rules and delivery history.
package notify

import (
	"time"
)

// Event type constants. Rules subscribe to these.
const (
	EventBuildFailure   = "build_failure"
	EventBuildSuccess   = "build_success"
	EventBuildCancelled = "build_cancelled"
	EventDeployment     = "deployment"
)

// Delivery status constants.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Rule decides which pipeline events produce notifications and where
// they go. Empty Branches means every branch matches.
type Rule struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"uniqueIndex;not null" json:"name"`
	Enabled    bool      `gorm:"not null" json:"enabled"`
	EventTypes []string  `gorm:"serializer:json" json:"event_types"`
	Branches   []string  `gorm:"serializer:json" json:"branches"`
	Channels   []string  `gorm:"serializer:json" json:"channels"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Matches reports whether the rule fires for the given event type and
// branch.
func (r *Rule) Matches(eventType, branch string) bool {
	if !r.Enabled {
		return false
	}

	var typeOK bool

	for _, et := range r.EventTypes {
		if et == eventType {
			typeOK = true

			break
		}
	}

	if !typeOK {
		return false
	}

	if len(r.Branches) == 0 {
		return true
	}

	for _, b := range r.Branches {
		if b == branch {
			return true
		}
	}

	return false
}

// HistoryEntry records one notification delivery attempt.
type HistoryEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RuleID    uint      `gorm:"index" json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	EventType string    `gorm:"not null" json:"event_type"`
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
	Status    string    `gorm:"not null" json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
