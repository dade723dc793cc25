package server

import (
	"context"

	"yamdb/internal/domain/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, search string, page models.PageRequest) ([]models.User, int, error)
	UpdateUser(ctx context.Context, user *models.User) error
	ConsumeConfirmationCode(ctx context.Context, userID int64, codeHash string) (bool, error)
	DeleteUser(ctx context.Context, id int64) error
}

type CategoryRepository interface {
	CreateCategory(ctx context.Context, category *models.Category) error
	GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error)
	ListCategories(ctx context.Context, search string, page models.PageRequest) ([]models.Category, int, error)
	DeleteCategory(ctx context.Context, slug string) error
}

type GenreRepository interface {
	CreateGenre(ctx context.Context, genre *models.Genre) error
	GetGenreBySlug(ctx context.Context, slug string) (*models.Genre, error)
	ListGenres(ctx context.Context, search string, page models.PageRequest) ([]models.Genre, int, error)
	DeleteGenre(ctx context.Context, slug string) error
}

type TitleRepository interface {
	CreateTitle(ctx context.Context, title *models.Title) error
	GetTitle(ctx context.Context, id int64) (*models.Title, error)
	ListTitles(ctx context.Context, filter models.TitleFilter, page models.PageRequest) ([]models.Title, int, error)
	UpdateTitle(ctx context.Context, title *models.Title) error
	DeleteTitle(ctx context.Context, id int64) error
}

type ReviewRepository interface {
	CreateReview(ctx context.Context, review *models.Review) error
	HasReview(ctx context.Context, titleID, authorID int64) (bool, error)
	GetReview(ctx context.Context, titleID, id int64) (*models.Review, error)
	ListReviews(ctx context.Context, titleID int64, page models.PageRequest) ([]models.Review, int, error)
	UpdateReview(ctx context.Context, review *models.Review) error
	DeleteReview(ctx context.Context, id int64) error
}

type CommentRepository interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, reviewID, id int64) (*models.Comment, error)
	ListComments(ctx context.Context, reviewID int64, page models.PageRequest) ([]models.Comment, int, error)
	UpdateComment(ctx context.Context, comment *models.Comment) error
	DeleteComment(ctx context.Context, id int64) error
}

// Repository is implemented by both repository/db and repository/inmemory.
type Repository interface {
	UserRepository
	CategoryRepository
	GenreRepository
	TitleRepository
	ReviewRepository
	CommentRepository
	Ping(ctx context.Context) error
}
