package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/campus-find/internal/model"
)

// UserRepo persists user accounts in the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,full_name,student_id,phone,is_active,created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName,
		&u.StudentID, &u.Phone, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// mapDuplicate converts a MySQL duplicate-key error (1062) into the
// matching sentinel. Uniqueness is enforced by the unique indexes on
// email and student_id, so two concurrent signups racing on the same
// value are resolved here, not by a check-then-insert in handlers.
func mapDuplicate(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "1062") {
		return err
	}
	if strings.Contains(msg, "student_id") {
		return ErrStudentIDExists
	}
	return ErrEmailExists
}

// Create inserts a user and returns the stored row. The password must
// already be hashed by the caller.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash, fullName string, studentID, phone *string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, full_name, student_id, phone) VALUES (?,?,?,?,?)",
		email, passwordHash, fullName, studentID, phone)
	if err != nil {
		return model.User{}, mapDuplicate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return r.FindByID(ctx, uint64(id))
}

// FindByEmail fetches a user by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// FindByStudentID fetches a user holding the given student ID,
// skipping excludeID so a user updating their own profile does not
// collide with themselves.
func (r *UserRepo) FindByStudentID(ctx context.Context, studentID string, excludeID uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE student_id=? AND id<>? LIMIT 1",
		studentID, excludeID))
}

// UpdateProfile applies a partial profile update. Only non-nil patch
// fields are written; an empty StudentID or Phone clears the column
// to NULL. Returns the row as stored after the update.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, patch model.ProfilePatch) (model.User, error) {
	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	if patch.FullName != nil {
		sets = append(sets, "full_name=?")
		args = append(args, *patch.FullName)
	}
	if patch.StudentID != nil {
		sets = append(sets, "student_id=?")
		args = append(args, nullable(*patch.StudentID))
	}
	if patch.Phone != nil {
		sets = append(sets, "phone=?")
		args = append(args, nullable(*patch.Phone))
	}
	if len(sets) > 0 {
		args = append(args, id)
		_, err := r.DB.ExecContext(ctx,
			"UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=?", args...)
		if err != nil {
			return model.User{}, mapDuplicate(err)
		}
	}
	return r.FindByID(ctx, id)
}

// UpdatePassword replaces the stored bcrypt hash for a user.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, passwordHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=?", passwordHash, id)
	return err
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
