package models

import "encoding/json"

// OptionalString tells an absent JSON field apart from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// Patch returns nil when the field was absent and a pointer to "" when it
// was null, so callers can treat null and "" alike.
func (o OptionalString) Patch() *string {
	if !o.Set {
		return nil
	}
	if o.Value == nil {
		empty := ""
		return &empty
	}
	return o.Value
}

type SignupRequest struct {
	Username string `json:"username" validate:"required,max=150,username"`
	Email    string `json:"email" validate:"required,max=254,email"`
}

type TokenRequest struct {
	Username         string `json:"username" validate:"required"`
	ConfirmationCode string `json:"confirmation_code" validate:"required"`
}

type CreateUserRequest struct {
	Username  string `json:"username" validate:"required,max=150,username"`
	Email     string `json:"email" validate:"required,max=254,email"`
	FirstName string `json:"first_name" validate:"omitempty,max=150"`
	LastName  string `json:"last_name" validate:"omitempty,max=150"`
	Bio       string `json:"bio"`
	Role      string `json:"role" validate:"omitempty,oneof=user moderator admin"`
}

type UpdateUserRequest struct {
	Username  *string `json:"username" validate:"omitempty,max=150,username"`
	Email     *string `json:"email" validate:"omitempty,max=254,email"`
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
	Bio       *string `json:"bio"`
	Role      *string `json:"role" validate:"omitempty,oneof=user moderator admin"`
}

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=256"`
	Slug string `json:"slug" validate:"required,max=50,slug"`
}

type GenreRequest struct {
	Name string `json:"name" validate:"required,max=256"`
	Slug string `json:"slug" validate:"required,max=50,slug"`
}

type CreateTitleRequest struct {
	Name        string   `json:"name" validate:"required,max=256"`
	Year        int      `json:"year" validate:"required,notfuture"`
	Description string   `json:"description"`
	Genre       []string `json:"genre" validate:"required,min=1,dive,required"`
	Category    string   `json:"category"`
}

type UpdateTitleRequest struct {
	Name        *string        `json:"name" validate:"omitempty,min=1,max=256"`
	Year        *int           `json:"year" validate:"omitempty,notfuture"`
	Description *string        `json:"description"`
	Genre       *[]string      `json:"genre"`
	Category    OptionalString `json:"category"`
}

type ReviewRequest struct {
	Text  string `json:"text" validate:"required,max=5000"`
	Score int    `json:"score" validate:"required,min=1,max=10"`
}

type UpdateReviewRequest struct {
	Text  *string `json:"text" validate:"omitempty,min=1,max=5000"`
	Score *int    `json:"score" validate:"omitempty,min=1,max=10"`
}

type CommentRequest struct {
	Text string `json:"text" validate:"required,max=200"`
}

type UpdateCommentRequest struct {
	Text *string `json:"text" validate:"omitempty,min=1,max=200"`
}
