package model

import "time"

// User represents an account record as stored in the `users` table.
// Each field corresponds to a column in the database. StudentID and
// Phone are optional columns and therefore pointer-typed; a nil value
// maps to SQL NULL. The PasswordHash never leaves the repository and
// auth layers; handlers build separate response types that omit it.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address, used as the login handle.
//  PasswordHash – bcrypt hashed password.
//  FullName     – display name shown in the app.
//  StudentID    – optional campus student ID, unique when present.
//  Phone        – optional phone number.
//  IsActive     – whether the account may authenticate.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	FullName     string    // users.full_name
	StudentID    *string   // users.student_id (nullable)
	Phone        *string   // users.phone (nullable)
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// ProfilePatch describes a partial update to a user's profile. Nil
// fields are left untouched; non-nil fields are written as-is. An
// empty string in StudentID or Phone clears the column to NULL.
type ProfilePatch struct {
	FullName  *string
	StudentID *string
	Phone     *string
}
