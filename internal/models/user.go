package models

import "time"

// User is the directory record the delivery engine consumes. The core never
// writes users; mutation happens through the user API only.
type User struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	Birthday    string    `json:"birthday"` // civil YYYY-MM-DD; only month/day drive recurrence
	Anniversary *string   `json:"anniversary,omitempty"`
	Timezone    string    `json:"timezone"` // IANA zone identifier
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// AnchorFor returns the civil anchor date for the given message type,
// or ok=false when the user has no such event configured.
func (u *User) AnchorFor(messageType MessageType) (string, bool) {
	switch messageType {
	case MessageTypeBirthday:
		return u.Birthday, u.Birthday != ""
	case MessageTypeAnniversary:
		if u.Anniversary == nil || *u.Anniversary == "" {
			return "", false
		}
		return *u.Anniversary, true
	default:
		return "", false
	}
}
