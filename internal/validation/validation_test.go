package validation

import (
	"strings"
	"testing"
	"time"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pinYear(t *testing.T, year int) {
	t.Helper()
	prev := now
	now = func() time.Time { return time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = prev })
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     struct {
			error   bool
			message string
		}
	}{
		{
			name:     "plain username",
			username: "bob",
		},
		{
			name:     "all allowed symbols",
			username: "a.b@c+d-e_f9",
		},
		{
			name:     "lowercase me",
			username: "me",
			want: struct {
				error   bool
				message string
			}{error: true, message: `Имя "me" запрещено.`},
		},
		{
			name:     "mixed case me",
			username: "mE",
			want: struct {
				error   bool
				message string
			}{error: true, message: `Имя "me" запрещено.`},
		},
		{
			name:     "forbidden characters",
			username: "bob smith!",
			want: struct {
				error   bool
				message string
			}{error: true, message: "Имя пользователя содержит недопустимые символы  !."},
		},
		{
			name:     "too long",
			username: strings.Repeat("a", UsernameMaxLength+1),
			want: struct {
				error   bool
				message string
			}{error: true, message: "Убедитесь, что значение не длиннее 150 символов."},
		},
		{
			name:     "exactly max length",
			username: strings.Repeat("a", UsernameMaxLength),
		},
		{
			name:     "empty",
			username: "",
			want: struct {
				error   bool
				message string
			}{error: true, message: "Обязательное поле."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if !tt.want.error {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))

			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.want.message, verr.Fields["username"])
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("bob@x.com"))
	assert.Error(t, ValidateEmail("bob.x.com"))
	assert.Error(t, ValidateEmail(strings.Repeat("a", 250)+"@x.com"))
	assert.NoError(t, ValidateEmail(strings.Repeat("a", 248)+"@x.com"))
}

func TestValidateYear(t *testing.T) {
	pinYear(t, 2026)

	assert.NoError(t, ValidateYear(2026))
	assert.NoError(t, ValidateYear(1895))
	err := ValidateYear(2027)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestValidateScore(t *testing.T) {
	for score := MinScore; score <= MaxScore; score++ {
		assert.NoError(t, ValidateScore(score))
	}
	assert.Error(t, ValidateScore(0))
	assert.Error(t, ValidateScore(11))
}

func TestValidateSlug(t *testing.T) {
	assert.NoError(t, ValidateSlug("sci-fi_2"))
	assert.Error(t, ValidateSlug("научная"))
	assert.Error(t, ValidateSlug("with space"))
}

func TestStruct(t *testing.T) {
	pinYear(t, 2026)
	future := 2030
	badScore := 0
	text := "ok"

	tests := []struct {
		name    string
		request any
		want    struct {
			fields []string
		}
	}{
		{
			name:    "valid signup",
			request: models.SignupRequest{Username: "bob", Email: "bob@x.com"},
		},
		{
			name:    "signup with forbidden username and broken email",
			request: models.SignupRequest{Username: "Me", Email: "nope"},
			want: struct {
				fields []string
			}{fields: []string{"username", "email"}},
		},
		{
			name:    "title from the future without genres",
			request: models.CreateTitleRequest{Name: "Завтра", Year: 2030},
			want: struct {
				fields []string
			}{fields: []string{"year", "genre"}},
		},
		{
			name:    "valid title",
			request: models.CreateTitleRequest{Name: "Вчера", Year: 2020, Genre: []string{"drama"}},
		},
		{
			name:    "review score out of range",
			request: models.ReviewRequest{Text: "плохо", Score: 11},
			want: struct {
				fields []string
			}{fields: []string{"score"}},
		},
		{
			name:    "partial title update with future year",
			request: models.UpdateTitleRequest{Year: &future},
			want: struct {
				fields []string
			}{fields: []string{"year"}},
		},
		{
			name:    "partial review update with zero score",
			request: models.UpdateReviewRequest{Text: &text, Score: &badScore},
			want: struct {
				fields []string
			}{fields: []string{"score"}},
		},
		{
			name:    "empty partial update",
			request: models.UpdateReviewRequest{},
		},
		{
			name:    "category with bad slug",
			request: models.CategoryRequest{Name: "Фильм", Slug: "фильм"},
			want: struct {
				fields []string
			}{fields: []string{"slug"}},
		},
		{
			name:    "user with unknown role",
			request: models.CreateUserRequest{Username: "bob", Email: "bob@x.com", Role: "root"},
			want: struct {
				fields []string
			}{fields: []string{"role"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.request)
			if len(tt.want.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr))
			for _, f := range tt.want.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}
