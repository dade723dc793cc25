package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID          int64
	Username    string
	Email       string
	Role        Role
	Bio         string
	FirstName   string
	LastName    string
	IsSuperuser bool
	Confirmed   bool
	// ConfirmationCodeHash is the bcrypt hash of the outstanding confirmation
	// code; empty when no code is pending.
	ConfirmationCodeHash string
}

type Category struct {
	ID   int64
	Name string
	Slug string
}

type Genre struct {
	ID   int64
	Name string
	Slug string
}

type Title struct {
	ID          int64
	Name        string
	Year        int
	Description string
	Category    *Category
	Genres      []Genre
	// Rating is the mean review score, nil when the title has no reviews.
	Rating *float64
}

type Review struct {
	ID       int64
	TitleID  int64
	AuthorID int64
	Author   string
	Text     string
	Score    int
	PubDate  time.Time
}

type Comment struct {
	ID       int64
	ReviewID int64
	AuthorID int64
	Author   string
	Text     string
	PubDate  time.Time
}

type TitleFilter struct {
	Name     string
	Year     *int
	Genre    string
	Category string
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
}

func (p PageRequest) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	}
	return p.PageSize
}

func (p PageRequest) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}
