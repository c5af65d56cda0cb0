package users

import (
	"context"
	"database/sql"
	"time"

	"github.com/mbs4/mbs4/pkg/database"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/pagination"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// sortColumns is the allow-list of sort fields for listing users.
var sortColumns = map[string]string{
	"id":       "u.id",
	"email":    "u.email",
	"name":     "u.name",
	"created":  "u.created",
	"modified": "u.modified",
}

// Service manages user accounts.
type Service struct {
	db *bun.DB
}

// NewService creates a new user service.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// CreateUserOptions are the options for creating a user. Password is
// optional; accounts provisioned for OIDC logins carry no local credential.
type CreateUserOptions struct {
	Email    string
	Name     string
	Roles    models.RoleList
	Password *string
}

// Create inserts a new user.
func (s *Service) Create(ctx context.Context, opts CreateUserOptions) (*models.User, error) {
	now := time.Now()
	user := &models.User{
		Created:  now,
		Modified: now,
		Version:  1,
		Email:    opts.Email,
		Name:     opts.Name,
		Roles:    opts.Roles,
	}
	if user.Roles == nil {
		user.Roles = models.RoleList{}
	}
	if opts.Password != nil {
		hash, err := HashPassword(*opts.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = &hash
	}

	_, err := s.db.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcodes.Conflict("A user with this email already exists.")
		}
		return nil, errors.WithStack(err)
	}

	return s.Retrieve(ctx, user.ID)
}

// Retrieve fetches a user by id.
func (s *Service) Retrieve(ctx context.Context, id int64) (*models.User, error) {
	user := new(models.User)
	err := s.db.
		NewSelect().
		Model(user).
		Where("u.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("User")
		}
		return nil, errors.WithStack(err)
	}
	return user, nil
}

// RetrieveByEmail fetches a user by email, ignoring case.
func (s *Service) RetrieveByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := s.db.
		NewSelect().
		Model(user).
		Where("u.email = ? COLLATE NOCASE", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("User")
		}
		return nil, errors.WithStack(err)
	}
	return user, nil
}

// Authenticate verifies an email/password pair. Every failure mode reports
// the same error so callers cannot probe which accounts exist.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.RetrieveByEmail(ctx, email)
	if err != nil {
		var ec *errcodes.Error
		if errors.As(err, &ec) && ec.HTTPCode == 404 {
			return nil, errcodes.Unauthorized()
		}
		return nil, err
	}
	if user.PasswordHash == nil {
		return nil, errcodes.Unauthorized()
	}

	ok, err := CheckPassword(*user.PasswordHash, password)
	if err != nil || !ok {
		return nil, errcodes.Unauthorized()
	}
	return user, nil
}

// UpdateUserOptions are the options for updating a user. Version is the
// client-observed row version; nil fields are left untouched.
type UpdateUserOptions struct {
	Version  int64
	Email    *string
	Name     *string
	Roles    models.RoleList
	Password *string
}

// Update applies the changed columns under an optimistic version check and
// returns the re-read user.
func (s *Service) Update(ctx context.Context, id int64, opts UpdateUserOptions) (*models.User, error) {
	q := s.db.
		NewUpdate().
		Model((*models.User)(nil)).
		Set("modified = ?", time.Now())

	if opts.Email != nil {
		q = q.Set("email = ?", *opts.Email)
	}
	if opts.Name != nil {
		q = q.Set("name = ?", *opts.Name)
	}
	if opts.Roles != nil {
		q = q.Set("roles = ?", opts.Roles)
	}
	if opts.Password != nil {
		hash, err := HashPassword(*opts.Password)
		if err != nil {
			return nil, err
		}
		q = q.Set("password_hash = ?", hash)
	}

	if err := database.UpdateVersioned(ctx, q, id, opts.Version, "User"); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errcodes.Conflict("A user with this email already exists.")
		}
		return nil, err
	}

	return s.Retrieve(ctx, id)
}

// SetPassword replaces the password of the account with the given email,
// bypassing the version check. Used by the admin CLI.
func (s *Service) SetPassword(ctx context.Context, email, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	res, err := s.db.
		NewUpdate().
		Model((*models.User)(nil)).
		Set("password_hash = ?", hash).
		Set("modified = ?", time.Now()).
		Set("version = version + 1").
		Where("email = ? COLLATE NOCASE", email).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if rows == 0 {
		return errcodes.NotFound("User")
	}
	return nil
}

// Delete removes a user.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.
		NewDelete().
		Model((*models.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if rows == 0 {
		return errcodes.NotFound("User")
	}
	return nil
}

// List returns one page of users. The filter matches email substrings.
func (s *Service) List(ctx context.Context, params pagination.Params) (*pagination.Page[*models.User], error) {
	orderBy, err := params.OrderBy(sortColumns)
	if err != nil {
		return nil, err
	}

	users := []*models.User{}
	q := s.db.NewSelect().Model(&users)
	if params.Filter != "" {
		q = q.Where("u.email LIKE ?", "%"+params.Filter+"%")
	}
	for _, expr := range orderBy {
		q = q.OrderExpr(expr)
	}
	q = q.OrderExpr("u.id ASC")

	total, err := q.Limit(params.Limit()).Offset(params.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return pagination.NewPage(params, total, users), nil
}

// ListAll returns every user ordered by id.
func (s *Service) ListAll(ctx context.Context) ([]*models.User, error) {
	users := []*models.User{}
	err := s.db.
		NewSelect().
		Model(&users).
		OrderExpr("u.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return users, nil
}

// Count returns the number of users.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.db.
		NewSelect().
		Model((*models.User)(nil)).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}
