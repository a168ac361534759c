package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/socialauth/internal/model"
)

// uniqueViolation はPostgreSQLのユニーク制約違反のSQLSTATE。
const uniqueViolation = "23505"

const userColumns = `id, full_name, email, password_hash, provider, provider_id, avatar_url, role, created_at, updated_at`

// userSortColumns は一覧のソートに許可するカラム。
var userSortColumns = map[string]string{
	"id":         "id",
	"full_name":  "full_name",
	"email":      "email",
	"created_at": "created_at",
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var role string
	err := row.Scan(
		&user.ID, &user.FullName, &user.Email, &user.PasswordHash,
		&user.Provider, &user.ProviderID, &user.AvatarURL, &role,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (full_name, email, password_hash, provider, provider_id, avatar_url, role)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		user.FullName, user.Email, user.PasswordHash, user.Provider, user.ProviderID, user.AvatarURL, string(user.Role),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はOAuth由来のプロフィール項目を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET full_name = $2, provider = $3, provider_id = $4, avatar_url = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		user.ID, user.FullName, user.Provider, user.ProviderID, user.AvatarURL,
	).Scan(&user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user not found: %d", user.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return nil
}

// UpdateRole はユーザーのロールを更新する。
func (r *PostgresUserRepo) UpdateRole(ctx context.Context, id int64, role model.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`,
		id, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %d", id)
	}
	return nil
}

// List は検索条件に一致するユーザーと総件数を返す。
// Limitが0以下の場合は全件を返す（エクスポート用）。
func (r *PostgresUserRepo) List(ctx context.Context, filter model.UserFilter) ([]*model.User, int, error) {
	where, args := buildUserWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM users`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + where + userOrderBy(filter)
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.Limit, (page-1)*filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, total, nil
}

// buildUserWhere は検索条件からWHERE句とバインド値を組み立てる。
func buildUserWhere(filter model.UserFilter) (string, []any) {
	var conds []string
	var args []any

	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}
	switch filter.LoginType {
	case model.ProviderGoogle:
		conds = append(conds, "provider_id IS NOT NULL")
	case model.ProviderEmail:
		conds = append(conds, "provider_id IS NULL")
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// userOrderBy は許可リストに基づきORDER BY句を返す。未知のカラムはcreated_atにフォールバックする。
func userOrderBy(filter model.UserFilter) string {
	col, ok := userSortColumns[filter.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
}

// Stats はユーザー数の集計を返す。
// provider_idの有無でGoogle連携ユーザーとメール登録ユーザーを区別する。
func (r *PostgresUserRepo) Stats(ctx context.Context) (*model.UserStats, error) {
	stats := &model.UserStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT
			count(*),
			count(*) FILTER (WHERE provider_id IS NULL),
			count(*) FILTER (WHERE provider_id IS NOT NULL),
			count(*) FILTER (WHERE role = 'admin')
		 FROM users`,
	).Scan(&stats.TotalUsers, &stats.EmailUsers, &stats.GoogleUsers, &stats.AdminUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user stats: %w", err)
	}
	return stats, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
