package domain

import (
	"context"
	"time"
)

// Event is a domain fact emitted after a successful mutation.
type Event interface {
	EventName() string
	Tenant() string
	OccurredAt() time.Time
}

// EventPublisher delivers events. Delivery failures never roll back the
// mutation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, e Event)
}

// Event names.
const (
	EventSubscriptionCreated   = "SubscriptionCreated"
	EventSubscriptionActivated = "SubscriptionActivated"
	EventSubscriptionCancelled = "SubscriptionCancelled"
	EventSubscriptionExpired   = "SubscriptionExpired"
	EventSubscriptionPastDue   = "SubscriptionPastDue"
	EventSubscriptionRenewed   = "SubscriptionRenewed"
	EventQuotaExceeded         = "QuotaExceeded"
	EventQuotaCheckDenied      = "QuotaCheckDenied"
	EventQuotaReset            = "QuotaReset"
	EventRiskCreated           = "RiskCreated"
	EventRiskAssessed          = "RiskAssessed"
	EventRiskTreated           = "RiskTreated"
	EventRiskAccepted          = "RiskAccepted"
	EventRiskClosed            = "RiskClosed"
	EventTaskCreated           = "TaskCreated"
	EventTaskStarted           = "TaskStarted"
	EventTaskCompleted         = "TaskCompleted"
	EventTaskRejected          = "TaskRejected"
	EventTaskCancelled         = "TaskCancelled"
	EventTaskReassigned        = "TaskReassigned"
)

// EventHeader carries the fields common to every event.
type EventHeader struct {
	Name     string    `json:"name"`
	TenantID string    `json:"tenantId"`
	UserID   string    `json:"userId,omitempty"`
	At       time.Time `json:"occurredAt"`
}

func (h EventHeader) EventName() string     { return h.Name }
func (h EventHeader) Tenant() string        { return h.TenantID }
func (h EventHeader) OccurredAt() time.Time { return h.At }

// NewEventHeader fills an EventHeader.
func NewEventHeader(name, tenantID, userID string, at time.Time) EventHeader {
	return EventHeader{Name: name, TenantID: tenantID, UserID: userID, At: at}
}

// SubscriptionEvent covers every subscription lifecycle event.
type SubscriptionEvent struct {
	EventHeader
	SubscriptionID string             `json:"subscriptionId"`
	ProductID      string             `json:"productId"`
	Status         SubscriptionStatus `json:"status"`
	Reason         string             `json:"reason,omitempty"`
}

// QuotaExceeded is emitted when an increment moves usage from below the
// limit to at or above it.
type QuotaExceeded struct {
	EventHeader
	QuotaType QuotaType `json:"quotaType"`
	Usage     float64   `json:"usage"`
	Limit     float64   `json:"limit"`
}

// QuotaCheckDenied records a CheckQuota that returned allowed=false.
type QuotaCheckDenied struct {
	EventHeader
	QuotaType QuotaType `json:"quotaType"`
	Usage     float64   `json:"usage"`
	Requested float64   `json:"requested"`
	Limit     float64   `json:"limit"`
}

// QuotaReset is emitted when a counter is zeroed.
type QuotaReset struct {
	EventHeader
	QuotaType     QuotaType  `json:"quotaType"`
	PreviousUsage float64    `json:"previousUsage"`
	NextResetDate *time.Time `json:"nextResetDate,omitempty"`
}

// RiskEvent covers risk lifecycle events.
type RiskEvent struct {
	EventHeader
	RiskID string     `json:"riskId"`
	Code   string     `json:"code"`
	Status RiskStatus `json:"status"`
	Level  RiskLevel  `json:"level,omitempty"`
}

// TaskEvent covers workflow task events.
type TaskEvent struct {
	EventHeader
	TaskID     string     `json:"taskId"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Status     TaskStatus `json:"status"`
	AssigneeID string     `json:"assigneeId,omitempty"`
	Comments   string     `json:"comments,omitempty"`
}
