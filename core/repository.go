package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Role names seeded by the initial migration.
const (
	RoleUser    = "USER"
	RoleManager = "MANAGER"
	RoleAdmin   = "ADMIN"
)

// MaxUsernameLength matches the members.username column width.
const MaxUsernameLength = 100

// Role is a named permission group.
type Role struct {
	ID   int64
	Name string
}

// Member is a registered account together with its roles.
type Member struct {
	ID           int64
	Username     string
	PasswordHash string
	Name         string
	Age          int
	Email        string
	Roles        []Role
	CreatedAt    time.Time
}

// MemberListItem is a projection for admin listing (no password hash).
type MemberListItem struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// MemberRepository defines persistence operations for members.
type MemberRepository interface {
	FindByUsername(ctx context.Context, username string) (*Member, error)
	// Create inserts the member and links the named roles atomically.
	Create(ctx context.Context, m Member, roleNames []string) (*Member, error)
	HasRole(ctx context.Context, roleName string) (bool, error)
	List(ctx context.Context, page, perPage int) ([]MemberListItem, int, error)
}

// PgMemberRepository implements MemberRepository using pgxpool.
type PgMemberRepository struct {
	db *pgxpool.Pool
}

func NewPgMemberRepository(db *pgxpool.Pool) *PgMemberRepository {
	return &PgMemberRepository{db: db}
}

func (r *PgMemberRepository) FindByUsername(ctx context.Context, username string) (*Member, error) {
	const q = `
SELECT m.id, m.username, m.password, m.name, m.age, m.email, m.created_at,
       COALESCE(array_agg(r.id ORDER BY r.id) FILTER (WHERE r.id IS NOT NULL), '{}') AS role_ids,
       COALESCE(array_agg(r.name ORDER BY r.id) FILTER (WHERE r.id IS NOT NULL), '{}') AS role_names
FROM members m
LEFT JOIN member_roles mr ON mr.member_id = m.id
LEFT JOIN roles r ON r.id = mr.role_id
WHERE m.username = $1
GROUP BY m.id`

	var (
		m         Member
		roleIDs   []int64
		roleNames []string
	)
	err := r.db.QueryRow(ctx, q, username).Scan(
		&m.ID, &m.Username, &m.PasswordHash, &m.Name, &m.Age, &m.Email, &m.CreatedAt,
		&roleIDs, &roleNames,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("find member %q: %w", username, err)
	}
	m.Roles = make([]Role, 0, len(roleIDs))
	for i := range roleIDs {
		m.Roles = append(m.Roles, Role{ID: roleIDs[i], Name: roleNames[i]})
	}
	return &m, nil
}

func (r *PgMemberRepository) Create(ctx context.Context, m Member, roleNames []string) (*Member, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertMember = `
INSERT INTO members (username, password, name, age, email)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`
	err = tx.QueryRow(ctx, insertMember, m.Username, m.PasswordHash, m.Name, m.Age, m.Email).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == pgerrcode.UniqueViolation {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("insert member: %w", err)
	}

	const linkRoles = `
WITH linked AS (
    INSERT INTO member_roles (member_id, role_id)
    SELECT $1, id FROM roles WHERE name = ANY($2)
    RETURNING role_id
)
SELECT r.id, r.name FROM roles r JOIN linked l ON l.role_id = r.id ORDER BY r.id`
	rows, err := tx.Query(ctx, linkRoles, m.ID, roleNames)
	if err != nil {
		return nil, fmt.Errorf("link roles: %w", err)
	}
	m.Roles = make([]Role, 0, len(roleNames))
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			rows.Close()
			return nil, err
		}
		m.Roles = append(m.Roles, role)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("link roles: %w", err)
	}
	if len(m.Roles) != countDistinct(roleNames) {
		return nil, fmt.Errorf("%w: unknown role in %v", ErrInvalidRegistration, roleNames)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit member: %w", err)
	}
	return &m, nil
}

func (r *PgMemberRepository) HasRole(ctx context.Context, roleName string) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM member_roles mr JOIN roles r ON r.id = mr.role_id WHERE r.name = $1
)`
	var exists bool
	if err := r.db.QueryRow(ctx, q, roleName).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgMemberRepository) List(ctx context.Context, page, perPage int) ([]MemberListItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const countQ = `SELECT COUNT(*) FROM members`
	var total int
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, err
	}
	const listQ = `
SELECT m.id, m.username, m.name, m.email, m.created_at,
       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.id IS NOT NULL), '{}')
FROM members m
LEFT JOIN member_roles mr ON mr.member_id = m.id
LEFT JOIN roles r ON r.id = mr.role_id
GROUP BY m.id
ORDER BY m.id
LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, listQ, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]MemberListItem, 0, perPage)
	for rows.Next() {
		var it MemberListItem
		if err := rows.Scan(&it.ID, &it.Username, &it.Name, &it.Email, &it.CreatedAt, &it.Roles); err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func countDistinct(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
