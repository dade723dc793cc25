package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"
)

// Storage keeps every table in maps guarded by one lock. Unique constraints
// (username, email, slugs, one review per title and author) are checked
// under the write lock, so concurrent writers see the same guarantees as
// with the database.
type Storage struct {
	mu sync.RWMutex

	users      map[int64]models.User
	categories map[int64]models.Category
	genres     map[int64]models.Genre
	titles     map[int64]titleRow
	reviews    map[int64]models.Review
	comments   map[int64]models.Comment

	seq map[string]int64
	now func() time.Time
}

type titleRow struct {
	ID          int64
	Name        string
	Year        int
	Description string
	CategoryID  int64
	GenreIDs    []int64
}

func NewStorage() *Storage {
	return &Storage{
		users:      make(map[int64]models.User),
		categories: make(map[int64]models.Category),
		genres:     make(map[int64]models.Genre),
		titles:     make(map[int64]titleRow),
		reviews:    make(map[int64]models.Review),
		comments:   make(map[int64]models.Comment),
		seq:        make(map[string]int64),
		now:        time.Now,
	}
}

func (s *Storage) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

func (s *Storage) Close() {}

// Users

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userTaken(0, user.Username, user.Email) {
		return errors.ErrUserAlreadyExists
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.ID = s.nextID("users")
	s.users[user.ID] = *user
	return nil
}

func (s *Storage) userTaken(exceptID int64, username, email string) bool {
	for id, u := range s.users {
		if id == exceptID {
			continue
		}
		if u.Username == username || u.Email == email {
			return true
		}
	}
	return false
}

func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, errors.ErrUserNotFound
	}
	return &user, nil
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Username == username {
			return &user, nil
		}
	}
	return nil, errors.ErrUserNotFound
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, errors.ErrUserNotFound
}

func (s *Storage) ListUsers(ctx context.Context, search string, page models.PageRequest) ([]models.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		if search != "" && u.Username != search {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return paginate(users, page), len(users), nil
}

func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; !exists {
		return errors.ErrUserNotFound
	}
	if s.userTaken(user.ID, user.Username, user.Email) {
		return errors.ErrUserAlreadyExists
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Storage) ConsumeConfirmationCode(ctx context.Context, userID int64, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists || codeHash == "" || user.ConfirmationCodeHash != codeHash {
		return false, nil
	}
	user.ConfirmationCodeHash = ""
	user.Confirmed = true
	s.users[userID] = user
	return true, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[id]; !exists {
		return errors.ErrUserNotFound
	}
	delete(s.users, id)
	for rid, r := range s.reviews {
		if r.AuthorID == id {
			s.deleteReviewLocked(rid)
		}
	}
	for cid, c := range s.comments {
		if c.AuthorID == id {
			delete(s.comments, cid)
		}
	}
	return nil
}

// Categories and genres

func (s *Storage) CreateCategory(ctx context.Context, category *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if c.Slug == category.Slug {
			return errors.ErrSlugTaken
		}
	}
	category.ID = s.nextID("categories")
	s.categories[category.ID] = *category
	return nil
}

func (s *Storage) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if c.Slug == slug {
			return &c, nil
		}
	}
	return nil, errors.ErrCategoryNotFound
}

func (s *Storage) ListCategories(ctx context.Context, search string, page models.PageRequest) ([]models.Category, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if hasPrefixFold(c.Name, search) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byNameThenID(out[i].Name, out[j].Name, out[i].ID, out[j].ID) })
	return paginate(out, page), len(out), nil
}

func (s *Storage) DeleteCategory(ctx context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.categories {
		if c.Slug != slug {
			continue
		}
		delete(s.categories, id)
		for tid, t := range s.titles {
			if t.CategoryID == id {
				t.CategoryID = 0
				s.titles[tid] = t
			}
		}
		return nil
	}
	return errors.ErrCategoryNotFound
}

func (s *Storage) CreateGenre(ctx context.Context, genre *models.Genre) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.genres {
		if g.Slug == genre.Slug {
			return errors.ErrSlugTaken
		}
	}
	genre.ID = s.nextID("genres")
	s.genres[genre.ID] = *genre
	return nil
}

func (s *Storage) GetGenreBySlug(ctx context.Context, slug string) (*models.Genre, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.genres {
		if g.Slug == slug {
			return &g, nil
		}
	}
	return nil, errors.ErrGenreNotFound
}

func (s *Storage) ListGenres(ctx context.Context, search string, page models.PageRequest) ([]models.Genre, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Genre, 0, len(s.genres))
	for _, g := range s.genres {
		if hasPrefixFold(g.Name, search) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byNameThenID(out[i].Name, out[j].Name, out[i].ID, out[j].ID) })
	return paginate(out, page), len(out), nil
}

func (s *Storage) DeleteGenre(ctx context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, g := range s.genres {
		if g.Slug != slug {
			continue
		}
		delete(s.genres, id)
		for tid, t := range s.titles {
			t.GenreIDs = removeID(t.GenreIDs, id)
			s.titles[tid] = t
		}
		return nil
	}
	return errors.ErrGenreNotFound
}

// Titles

func (s *Storage) CreateTitle(ctx context.Context, title *models.Title) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.titleRowLocked(title)
	if err != nil {
		return err
	}
	row.ID = s.nextID("titles")
	s.titles[row.ID] = row
	title.ID = row.ID
	*title = s.hydrateLocked(row)
	return nil
}

func (s *Storage) titleRowLocked(title *models.Title) (titleRow, error) {
	row := titleRow{
		ID:          title.ID,
		Name:        title.Name,
		Year:        title.Year,
		Description: title.Description,
	}
	if title.Category != nil {
		if _, ok := s.categories[title.Category.ID]; !ok {
			return titleRow{}, errors.ErrCategoryNotFound
		}
		row.CategoryID = title.Category.ID
	}
	for _, g := range title.Genres {
		if _, ok := s.genres[g.ID]; !ok {
			return titleRow{}, errors.ErrGenreNotFound
		}
		if !containsID(row.GenreIDs, g.ID) {
			row.GenreIDs = append(row.GenreIDs, g.ID)
		}
	}
	return row, nil
}

func (s *Storage) hydrateLocked(row titleRow) models.Title {
	title := models.Title{
		ID:          row.ID,
		Name:        row.Name,
		Year:        row.Year,
		Description: row.Description,
		Genres:      make([]models.Genre, 0, len(row.GenreIDs)),
	}
	if c, ok := s.categories[row.CategoryID]; ok {
		title.Category = &c
	}
	for _, gid := range row.GenreIDs {
		if g, ok := s.genres[gid]; ok {
			title.Genres = append(title.Genres, g)
		}
	}
	sort.Slice(title.Genres, func(i, j int) bool {
		return byNameThenID(title.Genres[i].Name, title.Genres[j].Name, title.Genres[i].ID, title.Genres[j].ID)
	})

	sum, n := 0, 0
	for _, r := range s.reviews {
		if r.TitleID == row.ID {
			sum += r.Score
			n++
		}
	}
	if n > 0 {
		rating := float64(sum) / float64(n)
		title.Rating = &rating
	}
	return title
}

func (s *Storage) GetTitle(ctx context.Context, id int64) (*models.Title, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, exists := s.titles[id]
	if !exists {
		return nil, errors.ErrTitleNotFound
	}
	title := s.hydrateLocked(row)
	return &title, nil
}

func (s *Storage) ListTitles(ctx context.Context, filter models.TitleFilter, page models.PageRequest) ([]models.Title, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Title, 0, len(s.titles))
	for _, row := range s.titles {
		title := s.hydrateLocked(row)
		if matchesTitle(title, filter) {
			out = append(out, title)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byNameThenID(out[i].Name, out[j].Name, out[i].ID, out[j].ID) })
	return paginate(out, page), len(out), nil
}

func matchesTitle(t models.Title, f models.TitleFilter) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Year != nil && t.Year != *f.Year {
		return false
	}
	if f.Category != "" && (t.Category == nil || t.Category.Slug != f.Category) {
		return false
	}
	if f.Genre != "" {
		found := false
		for _, g := range t.Genres {
			if g.Slug == f.Genre {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Storage) UpdateTitle(ctx context.Context, title *models.Title) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.titles[title.ID]; !exists {
		return errors.ErrTitleNotFound
	}
	row, err := s.titleRowLocked(title)
	if err != nil {
		return err
	}
	s.titles[row.ID] = row
	*title = s.hydrateLocked(row)
	return nil
}

func (s *Storage) DeleteTitle(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.titles[id]; !exists {
		return errors.ErrTitleNotFound
	}
	delete(s.titles, id)
	for rid, r := range s.reviews {
		if r.TitleID == id {
			s.deleteReviewLocked(rid)
		}
	}
	return nil
}

// Reviews

func (s *Storage) CreateReview(ctx context.Context, review *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.titles[review.TitleID]; !exists {
		return errors.ErrTitleNotFound
	}
	author, exists := s.users[review.AuthorID]
	if !exists {
		return errors.ErrUserNotFound
	}
	for _, r := range s.reviews {
		if r.TitleID == review.TitleID && r.AuthorID == review.AuthorID {
			return errors.ErrDuplicateReview
		}
	}
	review.ID = s.nextID("reviews")
	review.PubDate = s.now().UTC()
	review.Author = author.Username
	s.reviews[review.ID] = *review
	return nil
}

func (s *Storage) HasReview(ctx context.Context, titleID, authorID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.reviews {
		if r.TitleID == titleID && r.AuthorID == authorID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Storage) GetReview(ctx context.Context, titleID, id int64) (*models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	review, exists := s.reviews[id]
	if !exists || review.TitleID != titleID {
		return nil, errors.ErrReviewNotFound
	}
	review.Author = s.users[review.AuthorID].Username
	return &review, nil
}

func (s *Storage) ListReviews(ctx context.Context, titleID int64, page models.PageRequest) ([]models.Review, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Review, 0)
	for _, r := range s.reviews {
		if r.TitleID == titleID {
			r.Author = s.users[r.AuthorID].Username
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byDateThenID(out[i].PubDate, out[j].PubDate, out[i].ID, out[j].ID) })
	return paginate(out, page), len(out), nil
}

func (s *Storage) UpdateReview(ctx context.Context, review *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.reviews[review.ID]
	if !exists {
		return errors.ErrReviewNotFound
	}
	stored.Text = review.Text
	stored.Score = review.Score
	s.reviews[review.ID] = stored

	stored.Author = s.users[stored.AuthorID].Username
	*review = stored
	return nil
}

func (s *Storage) DeleteReview(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reviews[id]; !exists {
		return errors.ErrReviewNotFound
	}
	s.deleteReviewLocked(id)
	return nil
}

func (s *Storage) deleteReviewLocked(id int64) {
	delete(s.reviews, id)
	for cid, c := range s.comments {
		if c.ReviewID == id {
			delete(s.comments, cid)
		}
	}
}

// Comments

func (s *Storage) CreateComment(ctx context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reviews[comment.ReviewID]; !exists {
		return errors.ErrReviewNotFound
	}
	author, exists := s.users[comment.AuthorID]
	if !exists {
		return errors.ErrUserNotFound
	}
	comment.ID = s.nextID("comments")
	comment.PubDate = s.now().UTC()
	comment.Author = author.Username
	s.comments[comment.ID] = *comment
	return nil
}

func (s *Storage) GetComment(ctx context.Context, reviewID, id int64) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comment, exists := s.comments[id]
	if !exists || comment.ReviewID != reviewID {
		return nil, errors.ErrCommentNotFound
	}
	comment.Author = s.users[comment.AuthorID].Username
	return &comment, nil
}

func (s *Storage) ListComments(ctx context.Context, reviewID int64, page models.PageRequest) ([]models.Comment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Comment, 0)
	for _, c := range s.comments {
		if c.ReviewID == reviewID {
			c.Author = s.users[c.AuthorID].Username
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byDateThenID(out[i].PubDate, out[j].PubDate, out[i].ID, out[j].ID) })
	return paginate(out, page), len(out), nil
}

func (s *Storage) UpdateComment(ctx context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.comments[comment.ID]
	if !exists {
		return errors.ErrCommentNotFound
	}
	stored.Text = comment.Text
	s.comments[comment.ID] = stored

	stored.Author = s.users[stored.AuthorID].Username
	*comment = stored
	return nil
}

func (s *Storage) DeleteComment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.comments[id]; !exists {
		return errors.ErrCommentNotFound
	}
	delete(s.comments, id)
	return nil
}

func paginate[T any](items []T, page models.PageRequest) []T {
	offset := page.Offset()
	if offset >= len(items) {
		return []T{}
	}
	end := offset + page.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func hasPrefixFold(name, prefix string) bool {
	return prefix == "" || strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix))
}

func byNameThenID(a, b string, aID, bID int64) bool {
	if a != b {
		return a < b
	}
	return aID < bID
}

func byDateThenID(a, b time.Time, aID, bID int64) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aID < bID
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
