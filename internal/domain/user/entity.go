package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User represents the users table
type User struct {
	ID          uuid.UUID
	Username    sql.NullString
	Email       sql.NullString
	DisplayName string
	Role        string // ADMIN, PASTOR, STAFF, MEMBER, ...
	AvatarURL   string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (User) TableName() string {
	return "users"
}
