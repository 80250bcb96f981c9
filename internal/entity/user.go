package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User carries the contact fields the payment gateway requires on a session
// request. Profile management is out of scope.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	FullName  string    `bun:"full_name" json:"full_name"`
	Email     string    `bun:"email" json:"email"`
	Phone     string    `bun:"phone" json:"phone"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}
