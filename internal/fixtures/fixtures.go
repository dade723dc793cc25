// Package fixtures loads the demo data set shipped as CSV files into any
// storage backend.
package fixtures

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"
	"yamdb/internal/validation"
)

// Store is the subset of the repository the loader writes through.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	CreateCategory(ctx context.Context, category *models.Category) error
	CreateGenre(ctx context.Context, genre *models.Genre) error
	CreateTitle(ctx context.Context, title *models.Title) error
	CreateReview(ctx context.Context, review *models.Review) error
	CreateComment(ctx context.Context, comment *models.Comment) error
}

// Stats counts the rows stored per file.
type Stats map[string]int

const (
	fileUsers      = "users.csv"
	fileCategories = "category.csv"
	fileGenres     = "genre.csv"
	fileGenreTitle = "genre_title.csv"
	fileTitles     = "titles.csv"
	fileReviews    = "review.csv"
	fileComments   = "comments.csv"
)

// Loader remembers the ids the storage assigned to every CSV id so later
// files can reference rows from earlier ones.
type Loader struct {
	store Store
	log   *slog.Logger

	users      map[int64]int64
	categories map[int64]*models.Category
	genres     map[int64]*models.Genre
	titleGenre map[int64][]int64
	titles     map[int64]int64
	reviews    map[int64]int64
}

func NewLoader(store Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:      store,
		log:        logger,
		users:      map[int64]int64{},
		categories: map[int64]*models.Category{},
		genres:     map[int64]*models.Genre{},
		titleGenre: map[int64][]int64{},
		titles:     map[int64]int64{},
		reviews:    map[int64]int64{},
	}
}

// Load imports every known file found in dir. Missing files are skipped.
func (l *Loader) Load(ctx context.Context, dir string) (Stats, error) {
	steps := []struct {
		file string
		load func(context.Context, record) error
	}{
		{fileUsers, l.user},
		{fileCategories, l.category},
		{fileGenres, l.genre},
		{fileGenreTitle, l.genreTitle},
		{fileTitles, l.title},
		{fileReviews, l.review},
		{fileComments, l.comment},
	}

	stats := Stats{}
	for _, step := range steps {
		path := filepath.Join(dir, step.file)
		n, err := l.loadFile(ctx, path, step.load)
		if errors.Is(err, os.ErrNotExist) {
			l.log.Warn("файл не найден, пропускаем", "path", path)
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("%s: %w", step.file, err)
		}
		stats[step.file] = n
		l.log.Info("файл загружен", "path", path, "rows", n)
	}
	return stats, nil
}

func (l *Loader) loadFile(ctx context.Context, path string, load func(context.Context, record) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}

	n := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		line, _ := r.FieldPos(0)
		if err := load(ctx, record{columns: columns, values: row}); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
}

type record struct {
	columns map[string]int
	values  []string
}

func (r record) str(name string) string {
	if i, ok := r.columns[name]; ok && i < len(r.values) {
		return r.values[i]
	}
	return ""
}

func (r record) id(name string) (int64, error) {
	v, err := strconv.ParseInt(r.str(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: column %s: %q", errors.ErrInvalidInput, name, r.str(name))
	}
	return v, nil
}

func (r record) number(name string) (int, error) {
	v, err := r.id(name)
	return int(v), err
}

func (l *Loader) user(ctx context.Context, r record) error {
	id, err := r.id("id")
	if err != nil {
		return err
	}
	role := models.Role(r.str("role"))
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return fmt.Errorf("%w: role %q", errors.ErrInvalidInput, role)
	}
	u := &models.User{
		Username:  r.str("username"),
		Email:     r.str("email"),
		Role:      role,
		Bio:       r.str("bio"),
		FirstName: r.str("first_name"),
		LastName:  r.str("last_name"),
		Confirmed: true,
	}
	if err := l.store.CreateUser(ctx, u); err != nil {
		return err
	}
	l.users[id] = u.ID
	return nil
}

func (l *Loader) category(ctx context.Context, r record) error {
	id, err := r.id("id")
	if err != nil {
		return err
	}
	c := &models.Category{Name: r.str("name"), Slug: r.str("slug")}
	if err := validation.ValidateSlug(c.Slug); err != nil {
		return err
	}
	if err := l.store.CreateCategory(ctx, c); err != nil {
		return err
	}
	l.categories[id] = c
	return nil
}

func (l *Loader) genre(ctx context.Context, r record) error {
	id, err := r.id("id")
	if err != nil {
		return err
	}
	g := &models.Genre{Name: r.str("name"), Slug: r.str("slug")}
	if err := validation.ValidateSlug(g.Slug); err != nil {
		return err
	}
	if err := l.store.CreateGenre(ctx, g); err != nil {
		return err
	}
	l.genres[id] = g
	return nil
}

func (l *Loader) genreTitle(_ context.Context, r record) error {
	titleID, err := r.id("title_id")
	if err != nil {
		return err
	}
	genreID, err := r.id("genre_id")
	if err != nil {
		return err
	}
	if _, ok := l.genres[genreID]; !ok {
		return fmt.Errorf("genre %d: %w", genreID, errors.ErrGenreNotFound)
	}
	l.titleGenre[titleID] = append(l.titleGenre[titleID], genreID)
	return nil
}

func (l *Loader) title(ctx context.Context, r record) error {
	id, err := r.id("id")
	if err != nil {
		return err
	}
	year, err := r.number("year")
	if err != nil {
		return err
	}
	t := &models.Title{Name: r.str("name"), Year: year, Description: r.str("description")}
	if v := r.str("category"); v != "" {
		categoryID, err := r.id("category")
		if err != nil {
			return err
		}
		c, ok := l.categories[categoryID]
		if !ok {
			return fmt.Errorf("category %d: %w", categoryID, errors.ErrCategoryNotFound)
		}
		t.Category = c
	}
	for _, genreID := range l.titleGenre[id] {
		t.Genres = append(t.Genres, *l.genres[genreID])
	}
	if err := l.store.CreateTitle(ctx, t); err != nil {
		return err
	}
	l.titles[id] = t.ID
	return nil
}

func (l *Loader) review(ctx context.Context, r record) error {
	id, err := r.id("id")
	if err != nil {
		return err
	}
	titleID, authorID, err := l.refs(r, "title_id", l.titles, errors.ErrTitleNotFound)
	if err != nil {
		return err
	}
	score, err := r.number("score")
	if err != nil {
		return err
	}
	if err := validation.ValidateScore(score); err != nil {
		return err
	}
	rv := &models.Review{TitleID: titleID, AuthorID: authorID, Text: r.str("text"), Score: score}
	if err := l.store.CreateReview(ctx, rv); err != nil {
		return err
	}
	l.reviews[id] = rv.ID
	return nil
}

func (l *Loader) comment(ctx context.Context, r record) error {
	reviewID, authorID, err := l.refs(r, "review_id", l.reviews, errors.ErrReviewNotFound)
	if err != nil {
		return err
	}
	return l.store.CreateComment(ctx, &models.Comment{ReviewID: reviewID, AuthorID: authorID, Text: r.str("text")})
}

// refs resolves the parent column and the author column of a row.
func (l *Loader) refs(r record, parentColumn string, parents map[int64]int64, notFound error) (parent, author int64, err error) {
	csvParent, err := r.id(parentColumn)
	if err != nil {
		return 0, 0, err
	}
	parent, ok := parents[csvParent]
	if !ok {
		return 0, 0, fmt.Errorf("%s %d: %w", parentColumn, csvParent, notFound)
	}
	csvAuthor, err := r.id("author")
	if err != nil {
		return 0, 0, err
	}
	author, ok = l.users[csvAuthor]
	if !ok {
		return 0, 0, fmt.Errorf("author %d: %w", csvAuthor, errors.ErrUserNotFound)
	}
	return parent, author, nil
}
