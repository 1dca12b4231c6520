package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-find/internal/auth"
	"github.com/iliyamo/campus-find/internal/config"
	"github.com/iliyamo/campus-find/internal/middleware"
	"github.com/iliyamo/campus-find/internal/model"
	"github.com/iliyamo/campus-find/internal/queue"
	"github.com/iliyamo/campus-find/internal/repository"
)

// UserStore is the user-directory surface the auth handlers depend on.
// *repository.UserRepo satisfies it; tests use an in-memory fake.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByStudentID(ctx context.Context, studentID string, excludeID uint64) (model.User, error)
	Create(ctx context.Context, email, passwordHash, fullName string, studentID, phone *string) (model.User, error)
	UpdateProfile(ctx context.Context, id uint64, patch model.ProfilePatch) (model.User, error)
	UpdatePassword(ctx context.Context, id uint64, passwordHash string) error
}

// AuthHandler bundles dependencies for the auth endpoints. publish is
// invoked fire-and-forget after a successful signup; a nil publish
// disables eventing (used in tests).
type AuthHandler struct {
	Cfg     config.Config
	Users   UserStore
	publish func(context.Context, queue.UserRegisteredEvent) error
}

func NewAuthHandler(cfg config.Config, users UserStore, publish func(context.Context, queue.UserRegisteredEvent) error) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, publish: publish}
}

// ----- DTOs -----

type signupReq struct {
	FullName  string  `json:"fullName"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	StudentID *string `json:"studentId"`
	Phone     *string `json:"phone"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type profileReq struct {
	FullName  *string `json:"fullName"`
	StudentID *string `json:"studentId"`
	Phone     *string `json:"phone"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// userPayload is the client-facing view of a user. The password hash
// has no field here, so it can never serialize into a response.
type userPayload struct {
	ID        uint64    `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	StudentID *string   `json:"studentId"`
	Phone     *string   `json:"phone"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toPayload(u model.User) userPayload {
	return userPayload{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		StudentID: u.StudentID,
		Phone:     u.Phone,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *AuthHandler) sessionTTL() time.Duration {
	return time.Duration(h.Cfg.TokenTTLDays) * 24 * time.Hour
}

// Signup: validate, create the user and return a fresh session token.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FullName == "" || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Full name, email, and password are required",
		})
	}
	if len(req.Password) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Password must be at least 6 characters long",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	// Pre-checks give the client a field-specific message; the unique
	// indexes remain the authority, so a concurrent signup losing the
	// race still gets the same error from Create below.
	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "User with this email already exists", "code": "DUPLICATE_EMAIL",
		})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error during registration"})
	}
	studentID := normalizeOptional(req.StudentID)
	if studentID != nil {
		if _, err := h.Users.FindByStudentID(ctx, *studentID, 0); err == nil {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "Student ID already registered", "code": "DUPLICATE_STUDENT_ID",
			})
		} else if !errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error during registration"})
		}
	}

	hash, err := auth.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error during registration"})
	}
	u, err := h.Users.Create(ctx, req.Email, hash, req.FullName, studentID, normalizeOptional(req.Phone))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "User with this email already exists", "code": "DUPLICATE_EMAIL",
			})
		case errors.Is(err, repository.ErrStudentIDExists):
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "Student ID already registered", "code": "DUPLICATE_STUDENT_ID",
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error during registration"})
	}

	token, _, err := auth.NewSessionToken(h.Cfg.JWTSecret, u.ID, h.sessionTTL())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error during registration"})
	}

	if h.publish != nil {
		ev := queue.UserRegisteredEvent{
			UserID:       u.ID,
			Email:        u.Email,
			FullName:     u.FullName,
			RegisteredAt: u.CreatedAt.UTC().Format(time.RFC3339),
		}
		// Fire-and-forget: a broker outage must not fail the signup.
		go func() {
			pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer pubCancel()
			_ = h.publish(pubCtx, ev)
		}()
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "User registered successfully",
		"token":   token,
		"user":    toPayload(u),
	})
}

// Login: verify credentials and return a fresh session token. Unknown
// email and wrong password produce the identical response so the
// endpoint does not leak which accounts exist.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"error": "Invalid email or password", "code": "INVALID_CREDENTIALS",
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error during login"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error": "Account is deactivated. Please contact support.", "code": "ACCOUNT_DEACTIVATED",
		})
	}
	if !auth.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error": "Invalid email or password", "code": "INVALID_CREDENTIALS",
		})
	}

	token, _, err := auth.NewSessionToken(h.Cfg.JWTSecret, u.ID, h.sessionTTL())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error during login"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Login successful",
		"token":   token,
		"user":    toPayload(u),
	})
}

// Me returns the authenticated user's profile. The session middleware
// has already verified the token and re-fetched the user.
func (h *AuthHandler) Me(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Access token required", "code": "TOKEN_REQUIRED"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": toPayload(u)})
}

// UpdateProfile applies a partial profile update for the authenticated
// user. Only fields present in the request body are touched; an empty
// studentId or phone clears the value.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Access token required", "code": "TOKEN_REQUIRED"})
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	patch := model.ProfilePatch{StudentID: req.StudentID, Phone: req.Phone}
	if req.FullName != nil {
		// A blank full name is treated as absent rather than erasing
		// the display name.
		if name := strings.TrimSpace(*req.FullName); name != "" {
			patch.FullName = &name
		}
	}
	if patch.StudentID != nil && strings.TrimSpace(*patch.StudentID) != "" {
		if _, err := h.Users.FindByStudentID(ctx, *patch.StudentID, u.ID); err == nil {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "Student ID already registered", "code": "DUPLICATE_STUDENT_ID",
			})
		} else if !errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error while updating profile"})
		}
	}

	updated, err := h.Users.UpdateProfile(ctx, u.ID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrStudentIDExists) {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "Student ID already registered", "code": "DUPLICATE_STUDENT_ID",
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error while updating profile"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Profile updated successfully",
		"user":    toPayload(updated),
	})
}

// ChangePassword verifies the current password and replaces the stored
// hash. Existing session tokens stay valid until their natural expiry;
// the stateless session model has nothing to revoke.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Access token required", "code": "TOKEN_REQUIRED"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Current password and new password are required"})
	}
	if len(req.NewPassword) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "New password must be at least 6 characters long"})
	}
	if !auth.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error": "Current password is incorrect", "code": "INVALID_CREDENTIALS",
		})
	}

	hash, err := auth.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error while changing password"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error while changing password"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Password changed successfully",
	})
}

// normalizeOptional trims an optional string field, mapping nil and
// blank values to nil so they land as SQL NULL.
func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
