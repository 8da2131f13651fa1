package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/unireg-ph/prereg-api/internal/models"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsLogin(ctx context.Context, username, email, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	LoadStudentDetail(ctx context.Context, id string) (*models.StudentDetail, error)
	StaffCountersOf(ctx context.Context, staffID string) (*models.StaffCounters, error)
}

// CreateUserRequest is the account creation payload.
type CreateUserRequest struct {
	Username      string          `json:"username" validate:"required,min=3"`
	Email         string          `json:"email" validate:"required,email"`
	Password      string          `json:"password" validate:"required,min=8"`
	FirstName     string          `json:"first_name" validate:"required"`
	MiddleName    string          `json:"middle_name"`
	LastName      string          `json:"last_name" validate:"required"`
	Role          models.UserRole `json:"role" validate:"required,oneof=ADMIN REGISTRAR CASHIER INSTRUCTOR STUDENT"`
	StudentNumber string          `json:"student_number"`
	ProgramID     *string         `json:"program_id"`
	Year          int             `json:"year"`
	Section       string          `json:"section"`
}

// UpdateUserRequest is the partial account update payload.
type UpdateUserRequest struct {
	Email      *string `json:"email" validate:"omitempty,email"`
	Password   *string `json:"password" validate:"omitempty,min=8"`
	FirstName  *string `json:"first_name"`
	MiddleName *string `json:"middle_name"`
	LastName   *string `json:"last_name"`
	ProgramID  *string `json:"program_id"`
	Year       *int    `json:"year"`
	Section    *string `json:"section"`
}

// UserService manages accounts for both students and staff.
type UserService struct {
	users     userRepository
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the account service. The notifier may be nil.
func NewUserService(users userRepository, notifier Notifier, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, notifier: notifier, validator: validate, logger: logger}
}

// List returns accounts matching the filter.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one account.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, storeError(err, "failed to load user")
	}
	return user, nil
}

// GetStudentDetail returns a student account with its plan and transcript.
func (s *UserService) GetStudentDetail(ctx context.Context, id string) (*models.StudentDetail, error) {
	detail, err := s.users.LoadStudentDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, storeError(err, "failed to load student")
	}
	return detail, nil
}

// Create adds an account. Student accounts start unapproved; staff
// accounts are active immediately.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if req.Role == models.RoleStudent && req.StudentNumber == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student accounts require a student number")
	}

	taken, err := s.users.ExistsLogin(ctx, req.Username, req.Email, "")
	if err != nil {
		return nil, storeError(err, "failed to verify login")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username or email already in use")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:      req.Username,
		Email:         req.Email,
		PasswordHash:  string(hash),
		FirstName:     req.FirstName,
		MiddleName:    req.MiddleName,
		LastName:      req.LastName,
		Role:          req.Role,
		StudentNumber: req.StudentNumber,
		ProgramID:     req.ProgramID,
		Year:          req.Year,
		Section:       req.Section,
		Approved:      req.Role != models.RoleStudent,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storeError(err, "failed to create user")
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update applies the supplied fields to an account.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != user.Email {
		taken, err := s.users.ExistsLogin(ctx, "", *req.Email, id)
		if err != nil {
			return nil, storeError(err, "failed to verify email")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already in use")
		}
		user.Email = *req.Email
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.MiddleName != nil {
		user.MiddleName = *req.MiddleName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.ProgramID != nil {
		user.ProgramID = req.ProgramID
	}
	if req.Year != nil {
		user.Year = *req.Year
	}
	if req.Section != nil {
		user.Section = *req.Section
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, storeError(err, "failed to update user")
	}
	return user, nil
}

// Approve activates a pending student account.
func (s *UserService) Approve(ctx context.Context, id string) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Approved {
		return user, nil
	}
	user.Approved = true
	if err := s.users.Update(ctx, user); err != nil {
		return nil, storeError(err, "failed to approve user")
	}
	s.logger.Info("user approved", zap.String("user_id", user.ID))
	return user, nil
}

// Reject turns down a pending student account, archiving it and
// notifying the student. Approved accounts cannot be rejected.
func (s *UserService) Reject(ctx context.Context, id string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Approved {
		return appErrors.Clone(appErrors.ErrStateConflict, "account is already approved")
	}
	user.Archived = true
	if err := s.users.Update(ctx, user); err != nil {
		return storeError(err, "failed to reject user")
	}
	s.logger.Info("user rejected", zap.String("user_id", user.ID))
	if s.notifier != nil {
		s.notifier.QueueRegistrationRejection(*user)
	}
	return nil
}

// Archive soft-deletes an account, locking it out of login.
func (s *UserService) Archive(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, true)
}

// Restore reverses an archive.
func (s *UserService) Restore(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, false)
}

// StaffCounters returns one operator's throughput snapshot.
func (s *UserService) StaffCounters(ctx context.Context, staffID string) (*models.StaffCounters, error) {
	user, err := s.Get(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if !user.Role.Staff() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "account is not a staff member")
	}
	counters, err := s.users.StaffCountersOf(ctx, staffID)
	if err != nil {
		return nil, storeError(err, "failed to load staff counters")
	}
	return counters, nil
}

func (s *UserService) setArchived(ctx context.Context, id string, archived bool) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	user.Archived = archived
	if err := s.users.Update(ctx, user); err != nil {
		return storeError(err, "failed to archive user")
	}
	return nil
}
