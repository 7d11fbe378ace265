package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---------------------------------------------------------------------------
// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, tier, legacy_pro, is_admin, is_email_verified, verification_token)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, $8, $9)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Tier, user.LegacyPro, user.IsAdmin, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, display_name, email, password_hash, tier, legacy_pro, is_admin, is_email_verified, verification_token, verification_expires_at, totp_secret, mfa_enabled, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.Tier,
		&user.LegacyPro,
		&user.IsAdmin,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.TOTPSecret,
		&user.MFAEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=LOWER($1)`, email)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetUserTOTP(ctx context.Context, userID, secret string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET totp_secret=$2, mfa_enabled=FALSE, updated_at=NOW() WHERE id=$1`, userID, secret)
	if err != nil {
		return fmt.Errorf("set totp secret: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetUserMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET mfa_enabled=$2, updated_at=NOW() WHERE id=$1`, userID, enabled)
	if err != nil {
		return fmt.Errorf("set mfa enabled: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserTier(ctx context.Context, userID, tierName string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET tier=$2, updated_at=NOW() WHERE id=$1`, userID, tierName)
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Refresh sessions and token revocation

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.tier, u.legacy_pro, u.is_admin
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Tier, &user.LegacyPro, &user.IsAdmin)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---------------------------------------------------------------------------
// Sites

const siteColumns = `
	s.id, s.user_id, s.name, s.url, s.normalized_url, s.description, s.pricing,
	s.is_favorite, s.is_pinned, s.last_clicked_at, s.created_at, s.updated_at,
	COALESCE((SELECT json_agg(c.name ORDER BY c.name) FROM site_categories sc JOIN categories c ON c.id=sc.category_id WHERE sc.site_id=s.id), '[]'),
	COALESCE((SELECT json_agg(t.name ORDER BY t.name) FROM site_tags st JOIN tags t ON t.id=st.tag_id WHERE st.site_id=s.id), '[]')`

func scanSite(row interface{ Scan(...any) error }) (Site, error) {
	var item Site
	var categoriesRaw, tagsRaw []byte
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Name,
		&item.URL,
		&item.NormalizedURL,
		&item.Description,
		&item.Pricing,
		&item.IsFavorite,
		&item.IsPinned,
		&item.LastClickedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
		&categoriesRaw,
		&tagsRaw,
	)
	if err != nil {
		return Site{}, err
	}
	_ = json.Unmarshal(categoriesRaw, &item.Categories)
	_ = json.Unmarshal(tagsRaw, &item.Tags)
	if item.Categories == nil {
		item.Categories = []string{}
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	return item, nil
}

func (s *PostgresStore) ListSites(ctx context.Context, userID string, filter SiteFilter) ([]Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites s WHERE s.user_id=$1`
	args := []any{userID}

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(` AND EXISTS(SELECT 1 FROM site_categories sc JOIN categories c ON c.id=sc.category_id WHERE sc.site_id=s.id AND LOWER(c.name)=LOWER($%d))`, len(args))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		query += fmt.Sprintf(` AND EXISTS(SELECT 1 FROM site_tags st JOIN tags t ON t.id=st.tag_id WHERE st.site_id=s.id AND LOWER(t.name)=LOWER($%d))`, len(args))
	}
	if filter.Pricing != "" {
		args = append(args, filter.Pricing)
		query += fmt.Sprintf(` AND s.pricing=$%d`, len(args))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		query += fmt.Sprintf(` AND (s.name ILIKE $%d OR s.url ILIKE $%d OR s.description ILIKE $%d)`, len(args), len(args), len(args))
	}
	if filter.Favorite != nil {
		args = append(args, *filter.Favorite)
		query += fmt.Sprintf(` AND s.is_favorite=$%d`, len(args))
	}
	if filter.Pinned != nil {
		args = append(args, *filter.Pinned)
		query += fmt.Sprintf(` AND s.is_pinned=$%d`, len(args))
	}

	query += ` ORDER BY s.is_pinned DESC, s.created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	items := make([]Site, 0)
	for rows.Next() {
		item, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetSite(ctx context.Context, userID, siteID string) (Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites s WHERE s.id=$1 AND s.user_id=$2`, siteID, userID)
	return scanSite(row)
}

func (s *PostgresStore) FindSiteByNormalizedURL(ctx context.Context, userID, normalizedURL string) (Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites s WHERE s.user_id=$1 AND s.normalized_url=$2`, userID, normalizedURL)
	return scanSite(row)
}

// InsertSite writes the site row and its category/tag links in one transaction.
// Link names that do not resolve to an existing category/tag for the user are
// skipped; callers create those first so tier limits apply.
func (s *PostgresStore) InsertSite(ctx context.Context, site Site) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert site: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sites (id, user_id, name, url, normalized_url, description, pricing, is_favorite, is_pinned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, site.ID, site.UserID, site.Name, site.URL, site.NormalizedURL, site.Description, site.Pricing, site.IsFavorite, site.IsPinned)
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}

	if err := linkSiteNames(ctx, tx, site.UserID, site.ID, "categories", "site_categories", "category_id", site.Categories); err != nil {
		return err
	}
	if err := linkSiteNames(ctx, tx, site.UserID, site.ID, "tags", "site_tags", "tag_id", site.Tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert site: %w", err)
	}
	return nil
}

// UpdateSite rewrites the site row and both join tables atomically.
func (s *PostgresStore) UpdateSite(ctx context.Context, site Site) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update site: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE sites
		SET name=$3, url=$4, normalized_url=$5, description=$6, pricing=$7, is_favorite=$8, is_pinned=$9, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, site.ID, site.UserID, site.Name, site.URL, site.NormalizedURL, site.Description, site.Pricing, site.IsFavorite, site.IsPinned)
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update site rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM site_categories WHERE site_id=$1`, site.ID); err != nil {
		return fmt.Errorf("clear site categories: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM site_tags WHERE site_id=$1`, site.ID); err != nil {
		return fmt.Errorf("clear site tags: %w", err)
	}

	if err := linkSiteNames(ctx, tx, site.UserID, site.ID, "categories", "site_categories", "category_id", site.Categories); err != nil {
		return err
	}
	if err := linkSiteNames(ctx, tx, site.UserID, site.ID, "tags", "site_tags", "tag_id", site.Tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update site: %w", err)
	}
	return nil
}

func linkSiteNames(ctx context.Context, tx *sql.Tx, userID, siteID, table, joinTable, joinColumn string, names []string) error {
	for _, name := range names {
		var id string
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT id FROM %s WHERE user_id=$1 AND LOWER(name)=LOWER($2)`, table),
			userID, name,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve %s %q: %w", table, name, err)
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (site_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, joinTable, joinColumn),
			siteID, id,
		)
		if err != nil {
			return fmt.Errorf("link %s %q: %w", table, name, err)
		}
	}
	return nil
}

func (s *PostgresStore) DeleteSite(ctx context.Context, userID, siteID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id=$1 AND user_id=$2`, siteID, userID)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete site rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetFavorite(ctx context.Context, userID, siteID string, favorite bool) error {
	return s.setSiteFlag(ctx, userID, siteID, "is_favorite", favorite)
}

func (s *PostgresStore) SetPinned(ctx context.Context, userID, siteID string, pinned bool) error {
	return s.setSiteFlag(ctx, userID, siteID, "is_pinned", pinned)
}

func (s *PostgresStore) setSiteFlag(ctx context.Context, userID, siteID, column string, value bool) error {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE sites SET %s=$3, updated_at=NOW() WHERE id=$1 AND user_id=$2`, column),
		siteID, userID, value,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set %s rows: %w", column, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) RecordClick(ctx context.Context, userID, siteID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sites SET last_clicked_at=NOW() WHERE id=$1 AND user_id=$2`, siteID, userID)
	if err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record click rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListStaleSites returns unpinned sites not clicked since the cutoff (or never),
// oldest first.
func (s *PostgresStore) ListStaleSites(ctx context.Context, userID string, cutoff time.Time, limit int) ([]Site, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+siteColumns+`
		FROM sites s
		WHERE s.user_id=$1 AND s.is_pinned=FALSE
			AND (s.last_clicked_at IS NULL OR s.last_clicked_at < $2)
		ORDER BY s.last_clicked_at ASC NULLS FIRST, s.created_at ASC
		LIMIT $3
	`, userID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale sites: %w", err)
	}
	defer rows.Close()

	items := make([]Site, 0)
	for rows.Next() {
		item, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale site: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale sites: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountSites(ctx context.Context, userID string) (int, error) {
	return s.countOwned(ctx, "sites", userID)
}

func (s *PostgresStore) CountCategories(ctx context.Context, userID string) (int, error) {
	return s.countOwned(ctx, "categories", userID)
}

func (s *PostgresStore) CountTags(ctx context.Context, userID string) (int, error) {
	return s.countOwned(ctx, "tags", userID)
}

func (s *PostgresStore) countOwned(ctx context.Context, table, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE user_id=$1`, table), userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Categories and tags

func (s *PostgresStore) ListCategories(ctx context.Context, userID string) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.name, c.color, c.created_at,
			(SELECT COUNT(*) FROM site_categories sc WHERE sc.category_id=c.id)
		FROM categories c
		WHERE c.user_id=$1
		ORDER BY LOWER(c.name)
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := make([]Category, 0)
	for rows.Next() {
		var item Category
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.Color, &item.CreatedAt, &item.SiteCount); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) FindCategoryByName(ctx context.Context, userID, name string) (Category, error) {
	var item Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, color, created_at, 0 FROM categories WHERE user_id=$1 AND LOWER(name)=LOWER($2)
	`, userID, name).Scan(&item.ID, &item.UserID, &item.Name, &item.Color, &item.CreatedAt, &item.SiteCount)
	if err != nil {
		return Category{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertCategory(ctx context.Context, item Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, user_id, name, color) VALUES ($1, $2, $3, $4)
	`, item.ID, item.UserID, item.Name, item.Color)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, userID, categoryID, name, color string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name=$3, color=$4 WHERE id=$1 AND user_id=$2
	`, categoryID, userID, name, color)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update category rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id=$1 AND user_id=$2`, categoryID, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListTags(ctx context.Context, userID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.name, t.color, t.created_at,
			(SELECT COUNT(*) FROM site_tags st WHERE st.tag_id=t.id)
		FROM tags t
		WHERE t.user_id=$1
		ORDER BY LOWER(t.name)
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.Color, &item.CreatedAt, &item.SiteCount); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) FindTagByName(ctx context.Context, userID, name string) (Tag, error) {
	var item Tag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, color, created_at, 0 FROM tags WHERE user_id=$1 AND LOWER(name)=LOWER($2)
	`, userID, name).Scan(&item.ID, &item.UserID, &item.Name, &item.Color, &item.CreatedAt, &item.SiteCount)
	if err != nil {
		return Tag{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertTag(ctx context.Context, item Tag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, user_id, name, color) VALUES ($1, $2, $3, $4)
	`, item.ID, item.UserID, item.Name, item.Color)
	if err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTag(ctx context.Context, userID, tagID, name, color string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tags SET name=$3, color=$4 WHERE id=$1 AND user_id=$2
	`, tagID, userID, name, color)
	if err != nil {
		return fmt.Errorf("update tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tag rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteTag(ctx context.Context, userID, tagID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id=$1 AND user_id=$2`, tagID, userID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete tag rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---------------------------------------------------------------------------
// Share links

func (s *PostgresStore) CreateShareLink(ctx context.Context, link ShareLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_links (id, token, user_id, title) VALUES ($1, $2, $3, $4)
	`, link.ID, link.Token, link.UserID, link.Title)
	if err != nil {
		return fmt.Errorf("create share link: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListShareLinks(ctx context.Context, userID string) ([]ShareLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token, user_id, title, access_count, last_accessed_at, created_at, revoked_at
		FROM share_links
		WHERE user_id=$1 AND revoked_at IS NULL
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	defer rows.Close()

	items := make([]ShareLink, 0)
	for rows.Next() {
		var item ShareLink
		if err := rows.Scan(&item.ID, &item.Token, &item.UserID, &item.Title, &item.AccessCount, &item.LastAccessedAt, &item.CreatedAt, &item.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan share link: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share links: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetShareLinkByToken(ctx context.Context, token string) (ShareLink, error) {
	var item ShareLink
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token, user_id, title, access_count, last_accessed_at, created_at, revoked_at
		FROM share_links
		WHERE token=$1 AND revoked_at IS NULL
	`, token).Scan(&item.ID, &item.Token, &item.UserID, &item.Title, &item.AccessCount, &item.LastAccessedAt, &item.CreatedAt, &item.RevokedAt)
	if err != nil {
		return ShareLink{}, err
	}
	return item, nil
}

func (s *PostgresStore) TouchShareLink(ctx context.Context, linkID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET access_count=access_count+1, last_accessed_at=NOW() WHERE id=$1
	`, linkID)
	if err != nil {
		return fmt.Errorf("touch share link: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeShareLink(ctx context.Context, userID, linkID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET revoked_at=NOW() WHERE id=$1 AND user_id=$2 AND revoked_at IS NULL
	`, linkID, userID)
	if err != nil {
		return fmt.Errorf("revoke share link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke share link rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---------------------------------------------------------------------------
// Stats and account reset

func (s *PostgresStore) AccountStats(ctx context.Context, userID string) (AccountStats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM sites WHERE user_id=$1),
			(SELECT COUNT(*) FROM categories WHERE user_id=$1),
			(SELECT COUNT(*) FROM tags WHERE user_id=$1),
			(SELECT COUNT(*) FROM sites WHERE user_id=$1 AND is_favorite),
			(SELECT COUNT(*) FROM sites WHERE user_id=$1 AND is_pinned),
			(SELECT COUNT(*) FROM sites WHERE user_id=$1 AND last_clicked_at > NOW() - INTERVAL '7 days')
	`
	var stats AccountStats
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.SiteCount,
		&stats.CategoryCount,
		&stats.TagCount,
		&stats.FavoriteCount,
		&stats.PinnedCount,
		&stats.ClickedLastWeek,
	)
	if err != nil {
		return AccountStats{}, fmt.Errorf("account stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) AdminStats(ctx context.Context) (AdminStats, error) {
	var stats AdminStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM sites),
			(SELECT COUNT(*) FROM categories),
			(SELECT COUNT(*) FROM tags)
	`).Scan(&stats.UserCount, &stats.SiteCount, &stats.CategoryCount, &stats.TagCount)
	if err != nil {
		return AdminStats{}, fmt.Errorf("admin stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM users GROUP BY tier`)
	if err != nil {
		return AdminStats{}, fmt.Errorf("admin tier counts: %w", err)
	}
	defer rows.Close()

	stats.TierCounts = make(map[string]int)
	for rows.Next() {
		var tierName string
		var count int
		if err := rows.Scan(&tierName, &count); err != nil {
			return AdminStats{}, fmt.Errorf("scan tier count: %w", err)
		}
		stats.TierCounts[tierName] = count
	}
	if err := rows.Err(); err != nil {
		return AdminStats{}, fmt.Errorf("iterate tier counts: %w", err)
	}
	return stats, nil
}

// ResetAccount deletes all of a user's sites, categories, tags and share links
// in one transaction. The account itself survives.
func (s *PostgresStore) ResetAccount(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"sites", "categories", "tags", "share_links"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id=$1`, table), userID); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}
