package db

import (
	"context"
	"fmt"
	"strings"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"

	"github.com/jackc/pgx/v5"
)

const titleSelect = `
	SELECT t.id, t.name, t.year, t.description, c.id, c.name, c.slug,
		(SELECT AVG(r.score)::float8 FROM reviews r WHERE r.title_id = t.id)
	FROM titles t
	LEFT JOIN categories c ON c.id = t.category_id`

func scanTitle(row pgx.Row) (models.Title, error) {
	var (
		t                models.Title
		catID            *int64
		catName, catSlug *string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Year, &t.Description, &catID, &catName, &catSlug, &t.Rating); err != nil {
		return models.Title{}, err
	}
	if catID != nil {
		t.Category = &models.Category{ID: *catID, Name: *catName, Slug: *catSlug}
	}
	t.Genres = []models.Genre{}
	return t, nil
}

// attachGenres loads the genres of every title in one query.
func (s *Storage) attachGenres(ctx context.Context, titles []models.Title) error {
	if len(titles) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(titles))
	index := make(map[int64]int, len(titles))
	for i, t := range titles {
		ids = append(ids, t.ID)
		index[t.ID] = i
	}

	rows, err := s.pool.Query(ctx, `
		SELECT tg.title_id, g.id, g.name, g.slug
		FROM titles_genres tg
		JOIN genres g ON g.id = tg.genre_id
		WHERE tg.title_id = ANY($1)
		ORDER BY g.name, g.id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			titleID int64
			g       models.Genre
		)
		if err := rows.Scan(&titleID, &g.ID, &g.Name, &g.Slug); err != nil {
			return err
		}
		i := index[titleID]
		titles[i].Genres = append(titles[i].Genres, g)
	}
	return rows.Err()
}

func titleWriteError(err error) error {
	if constraint, ok := constraintOf(err, codeForeignKeyViolation); ok {
		if strings.Contains(constraint, "genre") {
			return errors.ErrGenreNotFound
		}
		if strings.Contains(constraint, "category") {
			return errors.ErrCategoryNotFound
		}
		return errors.ErrTitleNotFound
	}
	return err
}

func categoryID(t *models.Title) *int64 {
	if t.Category == nil {
		return nil
	}
	return &t.Category.ID
}

func (s *Storage) writeGenres(ctx context.Context, tx pgx.Tx, titleID int64, genres []models.Genre) error {
	if _, err := tx.Exec(ctx, `DELETE FROM titles_genres WHERE title_id = $1`, titleID); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, g := range genres {
		batch.Queue(`INSERT INTO titles_genres (title_id, genre_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, titleID, g.ID)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (s *Storage) CreateTitle(ctx context.Context, title *models.Title) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO titles (name, year, description, category_id) VALUES ($1, $2, $3, $4) RETURNING id`,
			title.Name, title.Year, title.Description, categoryID(title),
		).Scan(&title.ID); err != nil {
			return err
		}
		return s.writeGenres(ctx, tx, title.ID, title.Genres)
	})
	if err != nil {
		s.log.Error("не удалось создать произведение", "name", title.Name, "error", err)
		return titleWriteError(err)
	}

	stored, err := s.GetTitle(ctx, title.ID)
	if err != nil {
		return err
	}
	*title = *stored
	return nil
}

func (s *Storage) GetTitle(ctx context.Context, id int64) (*models.Title, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	title, err := scanTitle(s.pool.QueryRow(ctx, titleSelect+` WHERE t.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrTitleNotFound
		}
		s.log.Error("ошибка при получении произведения", "title_id", id, "error", err)
		return nil, err
	}
	titles := []models.Title{title}
	if err := s.attachGenres(ctx, titles); err != nil {
		return nil, err
	}
	return &titles[0], nil
}

func titleWhere(f models.TitleFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Name != "" {
		add(`t.name ILIKE '%%' || $%d || '%%'`, likePattern(f.Name))
	}
	if f.Year != nil {
		add(`t.year = $%d`, *f.Year)
	}
	if f.Category != "" {
		add(`c.slug = $%d`, f.Category)
	}
	if f.Genre != "" {
		add(`EXISTS (SELECT 1 FROM titles_genres tg JOIN genres g ON g.id = tg.genre_id
			WHERE tg.title_id = t.id AND g.slug = $%d)`, f.Genre)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Storage) ListTitles(ctx context.Context, filter models.TitleFilter, page models.PageRequest) ([]models.Title, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where, args := titleWhere(filter)
	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM titles t LEFT JOIN categories c ON c.id = t.category_id`+where, args...,
	).Scan(&count); err != nil {
		s.log.Error("не удалось посчитать произведения", "error", err)
		return nil, 0, err
	}

	n := len(args)
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`%s%s ORDER BY t.name, t.id LIMIT $%d OFFSET $%d`, titleSelect, where, n+1, n+2),
		append(args, page.Limit(), page.Offset())...)
	if err != nil {
		s.log.Error("не удалось получить произведения", "error", err)
		return nil, 0, err
	}
	titles := []models.Title{}
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		titles = append(titles, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := s.attachGenres(ctx, titles); err != nil {
		return nil, 0, err
	}
	return titles, count, nil
}

func (s *Storage) UpdateTitle(ctx context.Context, title *models.Title) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx,
			`UPDATE titles SET name = $1, year = $2, description = $3, category_id = $4 WHERE id = $5`,
			title.Name, title.Year, title.Description, categoryID(title), title.ID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return errors.ErrTitleNotFound
		}
		return s.writeGenres(ctx, tx, title.ID, title.Genres)
	})
	if err != nil {
		if errors.Is(err, errors.ErrTitleNotFound) {
			return err
		}
		s.log.Error("не удалось обновить произведение", "title_id", title.ID, "error", err)
		return titleWriteError(err)
	}

	stored, err := s.GetTitle(ctx, title.ID)
	if err != nil {
		return err
	}
	*title = *stored
	return nil
}

func (s *Storage) DeleteTitle(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, `DELETE FROM titles WHERE id = $1`, id)
	if err != nil {
		s.log.Error("не удалось удалить произведение", "title_id", id, "error", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrTitleNotFound
	}
	return nil
}

// Reviews

const reviewSelect = `
	SELECT r.id, r.title_id, r.author_id, u.username, r.text, r.score, r.pub_date
	FROM reviews r
	JOIN users u ON u.id = r.author_id`

func scanReview(row pgx.Row) (models.Review, error) {
	var r models.Review
	err := row.Scan(&r.ID, &r.TitleID, &r.AuthorID, &r.Author, &r.Text, &r.Score, &r.PubDate)
	return r, err
}

func (s *Storage) CreateReview(ctx context.Context, review *models.Review) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO reviews (title_id, author_id, text, score) VALUES ($1, $2, $3, $4)
			RETURNING id, author_id, pub_date
		)
		SELECT ins.id, ins.pub_date, u.username FROM ins JOIN users u ON u.id = ins.author_id`,
		review.TitleID, review.AuthorID, review.Text, review.Score,
	).Scan(&review.ID, &review.PubDate, &review.Author)
	if err != nil {
		if _, ok := constraintOf(err, codeUniqueViolation); ok {
			return errors.ErrDuplicateReview
		}
		if constraint, ok := constraintOf(err, codeForeignKeyViolation); ok {
			if strings.Contains(constraint, "author") {
				return errors.ErrUserNotFound
			}
			return errors.ErrTitleNotFound
		}
		s.log.Error("не удалось создать отзыв", "title_id", review.TitleID, "error", err)
		return err
	}
	return nil
}

func (s *Storage) HasReview(ctx context.Context, titleID, authorID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reviews WHERE title_id = $1 AND author_id = $2)`, titleID, authorID,
	).Scan(&exists)
	return exists, err
}

func (s *Storage) GetReview(ctx context.Context, titleID, id int64) (*models.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	r, err := scanReview(s.pool.QueryRow(ctx, reviewSelect+` WHERE r.id = $1 AND r.title_id = $2`, id, titleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrReviewNotFound
		}
		s.log.Error("ошибка при получении отзыва", "review_id", id, "error", err)
		return nil, err
	}
	return &r, nil
}

func (s *Storage) ListReviews(ctx context.Context, titleID int64, page models.PageRequest) ([]models.Review, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE title_id = $1`, titleID).Scan(&count); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		reviewSelect+` WHERE r.title_id = $1 ORDER BY r.pub_date, r.id LIMIT $2 OFFSET $3`,
		titleID, page.Limit(), page.Offset())
	if err != nil {
		s.log.Error("не удалось получить отзывы", "title_id", titleID, "error", err)
		return nil, 0, err
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		reviews = append(reviews, r)
	}
	return reviews, count, rows.Err()
}

func (s *Storage) UpdateReview(ctx context.Context, review *models.Review) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	r, err := scanReview(s.pool.QueryRow(ctx, `
		WITH upd AS (
			UPDATE reviews SET text = $1, score = $2 WHERE id = $3
			RETURNING id, title_id, author_id, text, score, pub_date
		)
		SELECT upd.id, upd.title_id, upd.author_id, u.username, upd.text, upd.score, upd.pub_date
		FROM upd JOIN users u ON u.id = upd.author_id`,
		review.Text, review.Score, review.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.ErrReviewNotFound
		}
		s.log.Error("не удалось обновить отзыв", "review_id", review.ID, "error", err)
		return err
	}
	*review = r
	return nil
}

func (s *Storage) DeleteReview(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		s.log.Error("не удалось удалить отзыв", "review_id", id, "error", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrReviewNotFound
	}
	return nil
}

// Comments

const commentSelect = `
	SELECT c.id, c.review_id, c.author_id, u.username, c.text, c.pub_date
	FROM comments c
	JOIN users u ON u.id = c.author_id`

func scanComment(row pgx.Row) (models.Comment, error) {
	var c models.Comment
	err := row.Scan(&c.ID, &c.ReviewID, &c.AuthorID, &c.Author, &c.Text, &c.PubDate)
	return c, err
}

func (s *Storage) CreateComment(ctx context.Context, comment *models.Comment) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO comments (review_id, author_id, text) VALUES ($1, $2, $3)
			RETURNING id, author_id, pub_date
		)
		SELECT ins.id, ins.pub_date, u.username FROM ins JOIN users u ON u.id = ins.author_id`,
		comment.ReviewID, comment.AuthorID, comment.Text,
	).Scan(&comment.ID, &comment.PubDate, &comment.Author)
	if err != nil {
		if constraint, ok := constraintOf(err, codeForeignKeyViolation); ok {
			if strings.Contains(constraint, "author") {
				return errors.ErrUserNotFound
			}
			return errors.ErrReviewNotFound
		}
		s.log.Error("не удалось создать комментарий", "review_id", comment.ReviewID, "error", err)
		return err
	}
	return nil
}

func (s *Storage) GetComment(ctx context.Context, reviewID, id int64) (*models.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	c, err := scanComment(s.pool.QueryRow(ctx, commentSelect+` WHERE c.id = $1 AND c.review_id = $2`, id, reviewID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrCommentNotFound
		}
		s.log.Error("ошибка при получении комментария", "comment_id", id, "error", err)
		return nil, err
	}
	return &c, nil
}

func (s *Storage) ListComments(ctx context.Context, reviewID int64, page models.PageRequest) ([]models.Comment, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM comments WHERE review_id = $1`, reviewID).Scan(&count); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		commentSelect+` WHERE c.review_id = $1 ORDER BY c.pub_date, c.id LIMIT $2 OFFSET $3`,
		reviewID, page.Limit(), page.Offset())
	if err != nil {
		s.log.Error("не удалось получить комментарии", "review_id", reviewID, "error", err)
		return nil, 0, err
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, 0, err
		}
		comments = append(comments, c)
	}
	return comments, count, rows.Err()
}

func (s *Storage) UpdateComment(ctx context.Context, comment *models.Comment) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	c, err := scanComment(s.pool.QueryRow(ctx, `
		WITH upd AS (
			UPDATE comments SET text = $1 WHERE id = $2
			RETURNING id, review_id, author_id, text, pub_date
		)
		SELECT upd.id, upd.review_id, upd.author_id, u.username, upd.text, upd.pub_date
		FROM upd JOIN users u ON u.id = upd.author_id`,
		comment.Text, comment.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.ErrCommentNotFound
		}
		s.log.Error("не удалось обновить комментарий", "comment_id", comment.ID, "error", err)
		return err
	}
	*comment = c
	return nil
}

func (s *Storage) DeleteComment(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		s.log.Error("не удалось удалить комментарий", "comment_id", id, "error", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrCommentNotFound
	}
	return nil
}
