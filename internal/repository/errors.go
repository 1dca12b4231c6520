// Package repository implements persistence for CampusFind user
// accounts on top of database/sql. Sentinel errors defined here let
// handlers distinguish uniqueness conflicts without inspecting
// driver-specific error text themselves.
package repository

import "errors"

// ErrEmailExists is returned when an insert or update would violate
// the unique index on users.email. Handlers should translate this
// into an HTTP 400 response telling the client the address is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrStudentIDExists is returned when a student ID is already bound
// to a different account. Handlers should translate this into an
// HTTP 400 response.
var ErrStudentIDExists = errors.New("student id already registered")
