package user

import (
	"context"
	"errors"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")

	errInvalidRoles = errors.New(allRolesText)
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		SetUserRoles(ctx context.Context, userID string, roles []string, exec ...core.DBExecutor) error
		SetUserActive(ctx context.Context, userID string, active bool, exec ...core.DBExecutor) error
		AddCourseReviewer(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) error
		IsCourseReviewer(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) (bool, error)
		CourseReviewerIDs(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]string, error)
	}

	// Authorizer answers the role and course questions the workflows ask before a transition.
	Authorizer interface {
		HasRole(ctx context.Context, userID, role string) (bool, error)
		CanReview(ctx context.Context, userID, courseID string) (bool, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		validate *core.Validator
	}
)

var _ Authorizer = (*Service)(nil)

func NewService(db core.DB, repo Repository, validate *core.Validator) *Service {
	InitValidators(validate.Validate, validate.Translator)
	return &Service{db: db, repo: repo, validate: validate}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}

	now := core.NowFunc()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		usr, err = svc.repo.CreateUser(ctx, usr, tx)
		return err
	})
	if core.IsConflict(err) {
		return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	}
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

// SetRoles replaces the roles of a user.
func (svc *Service) SetRoles(ctx context.Context, id string, roles []string) (User, error) {
	cleaned := make([]string, 0, len(roles))
	for _, role := range roles {
		cleaned = append(cleaned, core.CleanString(role, true /* lower */))
	}
	if err := svc.validate.Validate.Var(cleaned, allRolesTag); err != nil {
		return User{}, core.NewValidationError(errInvalidRoles, core.FieldError{Field: "roles", Error: allRolesText})
	}

	var usr User
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if _, err := svc.repo.GetUser(ctx, GetFilter{ID: id}, tx); err != nil {
			return err
		}
		if err := svc.repo.SetUserRoles(ctx, id, cleaned, tx); err != nil {
			return err
		}
		var err error
		usr, err = svc.repo.GetUser(ctx, GetFilter{ID: id}, tx)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *Service) SetActive(ctx context.Context, id string, active bool) error {
	return svc.repo.SetUserActive(ctx, id, active)
}

// AssignReviewer adds a user to the reviewer pool of a course, granting the reviewer role if missing.
func (svc *Service) AssignReviewer(ctx context.Context, courseID, userID string) error {
	return core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		usr, err := svc.repo.GetUser(ctx, GetFilter{ID: userID}, tx)
		if err != nil {
			return err
		}
		if !usr.RoleStartsWith(RoleReviewer) {
			if err = svc.repo.SetUserRoles(ctx, userID, append(usr.Roles, RoleReviewer), tx); err != nil {
				return err
			}
		}
		return svc.repo.AddCourseReviewer(ctx, courseID, userID, tx)
	})
}

// ReviewerIDs lists the reviewer pool of a course.
func (svc *Service) ReviewerIDs(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]string, error) {
	return svc.repo.CourseReviewerIDs(ctx, courseID, exec...)
}

// HasRole reports whether the user holds a role starting with role ("admin:" matches "admin:owner").
func (svc *Service) HasRole(ctx context.Context, userID, role string) (bool, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: userID})
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return usr.RoleStartsWith(role), nil
}

// CanReview reports whether the user may review submissions of the course:
// admins review everything, reviewers only the courses they are assigned to.
func (svc *Service) CanReview(ctx context.Context, userID, courseID string) (bool, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: userID})
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	if usr.IsAdmin() {
		return true, nil
	}
	if !usr.IsReviewer() {
		return false, nil
	}
	return svc.repo.IsCourseReviewer(ctx, courseID, userID)
}
