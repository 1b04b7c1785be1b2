package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is a registered participant, linked to a provider profile by ExternalProfileID
type User struct {
	ID                 string    `gorm:"primaryKey;type:text" json:"id"`
	DisplayName        string    `gorm:"not null;index" json:"name"`
	ExternalProfileURL string    `gorm:"not null" json:"profileUrl"`
	ExternalProfileID  string    `gorm:"uniqueIndex;not null" json:"profileId"`
	Group              string    `gorm:"column:group_name;index" json:"group"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID when the caller did not
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// RegistrationRequest is one entry of a registration import file
type RegistrationRequest struct {
	Name       string `json:"name" validate:"required,min=1,max=120"`
	ProfileURL string `json:"profileUrl" validate:"required,profileurl"`
	ProfileID  string `json:"profileId" validate:"required,profileid"`
	Group      string `json:"group" validate:"max=120"`
}

// Metadata is a small key/value record for process bookkeeping
type Metadata struct {
	Key         string         `gorm:"primaryKey;type:text" json:"key"`
	Value       datatypes.JSON `gorm:"not null" json:"value"`
	LastUpdated time.Time      `json:"lastUpdated"`
}

func (Metadata) TableName() string {
	return "metadata"
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
