package audit

import "time"

// Event is an immutable, append-only audit log record of an admin
// configuration change.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block admin writes on audit failures.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	ActorUserID   string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorUsername string `json:"actor_username,omitempty" db:"actor_username"`
	IPAddress     string `json:"ip_address,omitempty" db:"ip_address"`

	// Target names the changed object (template type, username, ...).
	Target string `json:"target,omitempty" db:"target"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTemplateUpdated    EventType = "email_template_updated"
	EventPhoneConfigUpdated EventType = "phone_config_updated"
	EventUserPasswordSet    EventType = "user_password_set"
)
