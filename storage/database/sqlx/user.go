package sqlxrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
	"github.com/ps965xx7vn-lgtm/backend-sub002/storage/database"
)

const userColumns = "id, name, email, is_active, created_at, updated_at"

var userOrderFields = map[string]bool{"name": true, "email": true, "created_at": true, "updated_at": true}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{baseRepository{exec: exec}}
}

type userRole struct {
	UserID string `db:"user_id"`
	Role   string `db:"role"`
}

// loadRoles fills the Roles of every user in users.
func (repo userRepository) loadRoles(ctx context.Context, exe core.DBExecutor, users []user.User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	var rows []userRole
	if err := selectIn(ctx, exe, &rows, "SELECT user_id, role FROM user_roles WHERE user_id IN (?) ORDER BY role", ids); err != nil {
		return errors.Wrap(err, "selecting user roles")
	}
	byUser := make(map[string][]string, len(users))
	for _, r := range rows {
		byUser[r.UserID] = append(byUser[r.UserID], r.Role)
	}
	for i := range users {
		users[i].Roles = byUser[users[i].ID]
		if users[i].Roles == nil {
			users[i].Roles = []string{}
		}
	}
	return nil
}

func (repo userRepository) insertRoles(ctx context.Context, exe core.DBExecutor, userID string, roles []string) error {
	seen := make(map[string]bool, len(roles))
	for _, role := range roles {
		if seen[role] {
			continue
		}
		seen[role] = true
		if _, err := exe.ExecContext(ctx, exe.Rebind("INSERT INTO user_roles (user_id, role) VALUES (?, ?)"), userID, role); err != nil {
			return errors.Wrap(err, "inserting user role")
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	usr.ID = core.NewID()
	usr.CreatedAt = usr.CreatedAt.UTC()
	usr.UpdatedAt = usr.UpdatedAt.UTC()

	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?)"),
		usr.ID, usr.Name, usr.Email, usr.IsActive, usr.CreatedAt, usr.UpdatedAt)
	if err != nil {
		return user.User{}, database.TrapUniqueErr(err, user.ErrEmailExists, "inserting user")
	}
	if err = repo.insertRoles(ctx, exe, usr.ID, usr.Roles); err != nil {
		return user.User{}, err
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	var usr user.User
	var err error

	switch {
	case filter.ID != "":
		if !core.IsValidID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		err = get(ctx, exe, &usr, "SELECT "+userColumns+" FROM users WHERE id = ?", filter.ID)
	case filter.Email != "":
		err = get(ctx, exe, &usr, "SELECT "+userColumns+" FROM users WHERE email = ?", filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}

	users := []user.User{usr}
	if err = repo.loadRoles(ctx, exe, users); err != nil {
		return user.User{}, err
	}
	return users[0], nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	exe := repo.getExec(exec)
	var w where

	if filter != nil {
		// users with Name or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			w.add("(LOWER(name) LIKE ? OR LOWER(email) LIKE ?)", val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleConds := make([]string, 0, len(filter.Roles))
			roleArgs := make([]interface{}, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleConds = append(roleConds, "role LIKE ?")
				roleArgs = append(roleArgs, role+"%")
			}
			w.add("id IN (SELECT user_id FROM user_roles WHERE "+strings.Join(roleConds, " OR ")+")", roleArgs...)
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			w.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			w.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	q := "SELECT " + userColumns + " FROM users" + w.String() + orderBy(ordering, userOrderFields, "created_at ASC")
	users := make([]user.User, 0)
	if err := selectAll(ctx, exe, &users, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	if err := repo.loadRoles(ctx, exe, users); err != nil {
		return nil, err
	}
	return users, nil
}

func (repo userRepository) SetUserRoles(ctx context.Context, userID string, roles []string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	if _, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM user_roles WHERE user_id = ?"), userID); err != nil {
		return errors.Wrap(err, "deleting user roles")
	}
	if err := repo.insertRoles(ctx, exe, userID, roles); err != nil {
		return err
	}
	if _, err := exe.ExecContext(ctx, exe.Rebind("UPDATE users SET updated_at = ? WHERE id = ?"), core.NowFunc(), userID); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}

func (repo userRepository) SetUserActive(ctx context.Context, userID string, active bool, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), "UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?", active, core.NowFunc(), userID)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo userRepository) AddCourseReviewer(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO course_reviewers (course_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING"), courseID, userID)
	if err != nil {
		return errors.Wrap(err, "inserting course reviewer")
	}
	return nil
}

func (repo userRepository) IsCourseReviewer(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) (bool, error) {
	var cnt int
	err := get(ctx, repo.getExec(exec), &cnt,
		"SELECT COUNT(*) FROM course_reviewers WHERE course_id = ? AND user_id = ?", courseID, userID)
	if err != nil {
		return false, errors.Wrap(err, "checking course reviewer")
	}
	return cnt > 0, nil
}

func (repo userRepository) CourseReviewerIDs(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]string, error) {
	ids := make([]string, 0)
	err := selectAll(ctx, repo.getExec(exec), &ids,
		"SELECT cr.user_id FROM course_reviewers cr JOIN users u ON u.id = cr.user_id "+
			"WHERE cr.course_id = ? AND u.is_active = ? ORDER BY cr.user_id", courseID, true)
	if err != nil {
		return nil, errors.Wrap(err, "selecting course reviewers")
	}
	return ids, nil
}
