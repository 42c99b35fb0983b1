package domain

import "time"

// Status is a user's self-declared presence status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusBusy    Status = "busy"
)

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusOnline, StatusOffline, StatusBusy:
		return st, true
	}
	return "", false
}

// Available reports whether the user accepts unthrottled traffic.
func (s Status) Available() bool {
	return s == StatusOnline
}

// User is an entry of the user directory.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	PublicKey   string    `json:"public_key,omitempty"`
	PrivateKey  string    `json:"-"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasKeys reports whether key material has been provisioned.
func (u *User) HasKeys() bool {
	return u.PublicKey != "" && u.PrivateKey != ""
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Status      Status `json:"status"`
}

// ToResponse converts User to UserResponse.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Status:      u.Status,
	}
}
