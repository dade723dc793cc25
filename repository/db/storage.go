package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	queryTimeout = 15 * time.Second

	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Storage struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewStorage(connStr string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		logger.Error("не удалось подключиться к базе данных", "error", err)
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("база данных недоступна", "error", err)
		return nil, err
	}
	logger.Info("соединение с базой данных установлено успешно")
	return &Storage{pool: pool, log: logger}, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() {
	s.pool.Close()
}

func constraintOf(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr.ConstraintName, true
	}
	return "", false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern escapes LIKE metacharacters in user input.
func likePattern(s string) string {
	return likeEscaper.Replace(s)
}

// Users

const userColumns = `id, username, email, role, bio, first_name, last_name, is_superuser, confirmed, confirmation_code_hash`

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &u.Bio, &u.FirstName, &u.LastName,
		&u.IsSuperuser, &u.Confirmed, &u.ConfirmationCodeHash); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return u, nil
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, role, bio, first_name, last_name, is_superuser, confirmed, confirmation_code_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		user.Username, user.Email, string(user.Role), user.Bio, user.FirstName, user.LastName,
		user.IsSuperuser, user.Confirmed, user.ConfirmationCodeHash,
	).Scan(&user.ID)
	if err != nil {
		if _, ok := constraintOf(err, codeUniqueViolation); ok {
			return errors.ErrUserAlreadyExists
		}
		s.log.Error("не удалось создать пользователя", "username", user.Username, "error", err)
		return err
	}
	s.log.Debug("пользователь создан", "user_id", user.ID)
	return nil
}

func (s *Storage) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		s.log.Error("ошибка при получении пользователя", "error", err)
		return nil, err
	}
	return user, nil
}

func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *Storage) ListUsers(ctx context.Context, search string, page models.PageRequest) ([]models.User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where, args := "", []any{}
	if search != "" {
		where = ` WHERE username = $1`
		args = append(args, search)
	}

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&count); err != nil {
		s.log.Error("не удалось посчитать пользователей", "error", err)
		return nil, 0, err
	}

	n := len(args)
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM users%s ORDER BY username LIMIT $%d OFFSET $%d`, userColumns, where, n+1, n+2),
		append(args, page.Limit(), page.Offset())...)
	if err != nil {
		s.log.Error("не удалось получить пользователей", "error", err)
		return nil, 0, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, count, rows.Err()
}

func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, `
		UPDATE users SET username = $1, email = $2, role = $3, bio = $4, first_name = $5, last_name = $6,
			is_superuser = $7, confirmed = $8, confirmation_code_hash = $9
		WHERE id = $10`,
		user.Username, user.Email, string(user.Role), user.Bio, user.FirstName, user.LastName,
		user.IsSuperuser, user.Confirmed, user.ConfirmationCodeHash, user.ID)
	if err != nil {
		if _, ok := constraintOf(err, codeUniqueViolation); ok {
			return errors.ErrUserAlreadyExists
		}
		s.log.Error("не удалось обновить пользователя", "user_id", user.ID, "error", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

func (s *Storage) ConsumeConfirmationCode(ctx context.Context, userID int64, codeHash string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, `
		UPDATE users SET confirmation_code_hash = '', confirmed = TRUE
		WHERE id = $1 AND confirmation_code_hash = $2 AND $2 <> ''`, userID, codeHash)
	if err != nil {
		s.log.Error("не удалось погасить код подтверждения", "user_id", userID, "error", err)
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		s.log.Error("не удалось удалить пользователя", "user_id", id, "error", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

// Categories and genres share one table layout.

type slugTable struct {
	name     string
	notFound error
}

var (
	categoriesTable = slugTable{name: "categories", notFound: errors.ErrCategoryNotFound}
	genresTable     = slugTable{name: "genres", notFound: errors.ErrGenreNotFound}
)

func (s *Storage) createSlugged(ctx context.Context, t slugTable, name, slug string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO `+t.name+` (name, slug) VALUES ($1, $2) RETURNING id`, name, slug).Scan(&id)
	if err != nil {
		if _, ok := constraintOf(err, codeUniqueViolation); ok {
			return 0, errors.ErrSlugTaken
		}
		s.log.Error("не удалось создать запись", "table", t.name, "slug", slug, "error", err)
		return 0, err
	}
	return id, nil
}

func (s *Storage) getSlugged(ctx context.Context, t slugTable, slug string) (id int64, name string, err error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err = s.pool.QueryRow(ctx, `SELECT id, name FROM `+t.name+` WHERE slug = $1`, slug).Scan(&id, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", t.notFound
	}
	return id, name, err
}

type slugRow struct {
	ID   int64
	Name string
	Slug string
}

func (s *Storage) listSlugged(ctx context.Context, t slugTable, search string, page models.PageRequest) ([]slugRow, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pattern := likePattern(search) + "%"
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+t.name+` WHERE name ILIKE $1`, pattern).Scan(&count); err != nil {
		s.log.Error("не удалось посчитать записи", "table", t.name, "error", err)
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, slug FROM `+t.name+` WHERE name ILIKE $1 ORDER BY name, id LIMIT $2 OFFSET $3`,
		pattern, page.Limit(), page.Offset())
	if err != nil {
		s.log.Error("не удалось получить записи", "table", t.name, "error", err)
		return nil, 0, err
	}
	defer rows.Close()

	out := []slugRow{}
	for rows.Next() {
		var r slugRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Slug); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, count, rows.Err()
}

func (s *Storage) deleteSlugged(ctx context.Context, t slugTable, slug string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+t.name+` WHERE slug = $1`, slug)
	if err != nil {
		s.log.Error("не удалось удалить запись", "table", t.name, "slug", slug, "error", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return t.notFound
	}
	return nil
}

func (s *Storage) CreateCategory(ctx context.Context, category *models.Category) error {
	id, err := s.createSlugged(ctx, categoriesTable, category.Name, category.Slug)
	if err != nil {
		return err
	}
	category.ID = id
	return nil
}

func (s *Storage) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	id, name, err := s.getSlugged(ctx, categoriesTable, slug)
	if err != nil {
		return nil, err
	}
	return &models.Category{ID: id, Name: name, Slug: slug}, nil
}

func (s *Storage) ListCategories(ctx context.Context, search string, page models.PageRequest) ([]models.Category, int, error) {
	rows, count, err := s.listSlugged(ctx, categoriesTable, search, page)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Category{ID: r.ID, Name: r.Name, Slug: r.Slug})
	}
	return out, count, nil
}

func (s *Storage) DeleteCategory(ctx context.Context, slug string) error {
	return s.deleteSlugged(ctx, categoriesTable, slug)
}

func (s *Storage) CreateGenre(ctx context.Context, genre *models.Genre) error {
	id, err := s.createSlugged(ctx, genresTable, genre.Name, genre.Slug)
	if err != nil {
		return err
	}
	genre.ID = id
	return nil
}

func (s *Storage) GetGenreBySlug(ctx context.Context, slug string) (*models.Genre, error) {
	id, name, err := s.getSlugged(ctx, genresTable, slug)
	if err != nil {
		return nil, err
	}
	return &models.Genre{ID: id, Name: name, Slug: slug}, nil
}

func (s *Storage) ListGenres(ctx context.Context, search string, page models.PageRequest) ([]models.Genre, int, error) {
	rows, count, err := s.listSlugged(ctx, genresTable, search, page)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.Genre, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Genre{ID: r.ID, Name: r.Name, Slug: r.Slug})
	}
	return out, count, nil
}

func (s *Storage) DeleteGenre(ctx context.Context, slug string) error {
	return s.deleteSlugged(ctx, genresTable, slug)
}
