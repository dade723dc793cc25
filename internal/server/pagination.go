package server

import (
	"net/url"
	"strconv"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"

	"github.com/gin-gonic/gin"
)

func pageRequest(ctx *gin.Context) (models.PageRequest, error) {
	req := models.PageRequest{Page: 1, PageSize: models.DefaultPageSize}

	if v := ctx.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return req, errors.NewValidationError("page", "Неверная страница.")
		}
		req.Page = n
	}
	if v := ctx.Query("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return req, errors.NewValidationError("page_size", "Введите целое положительное число.")
		}
		req.PageSize = min(n, models.MaxPageSize)
	}
	return req, nil
}

// newPage wraps one page of results with count and navigation links. A page
// past the end is reported as not found, except for the first page of an
// empty list.
func newPage[M, T any](ctx *gin.Context, req models.PageRequest, items []M, count int, convert func(*M) T) (models.Page[T], error) {
	if req.Page > 1 && req.Offset() >= count {
		return models.Page[T]{}, errors.ErrNotFound
	}

	page := models.Page[T]{Count: count, Results: make([]T, 0, len(items))}
	for i := range items {
		page.Results = append(page.Results, convert(&items[i]))
	}
	if req.Offset()+len(items) < count {
		page.Next = pageLink(ctx.Request.URL, req.Page+1)
	}
	if req.Page > 1 {
		page.Previous = pageLink(ctx.Request.URL, req.Page-1)
	}
	return page, nil
}

func pageLink(u *url.URL, page int) *string {
	q := u.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	link := url.URL{Path: u.Path, RawQuery: q.Encode()}
	s := link.String()
	return &s
}
