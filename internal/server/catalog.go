package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"
	"yamdb/internal/policy"

	"github.com/gin-gonic/gin"
)

// Categories

func (api *API) listCategories(ctx *gin.Context) {
	req, err := pageRequest(ctx)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	categories, count, err := api.repo.ListCategories(ctx.Request.Context(), ctx.Query("search"), req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	page, err := newPage(ctx, req, categories, count, models.NewCategoryResponse)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, page)
}

func (api *API) createCategory(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionCreate, policy.ResourceCategory, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	var req models.CategoryRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}

	category := &models.Category{Name: req.Name, Slug: req.Slug}
	if err := api.repo.CreateCategory(ctx.Request.Context(), category); err != nil {
		api.writeError(ctx, slugConflict(err, "Категория"))
		return
	}
	ctx.JSON(http.StatusCreated, models.NewCategoryResponse(category))
}

func (api *API) getCategory(ctx *gin.Context) {
	category, err := api.repo.GetCategoryBySlug(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.NewCategoryResponse(category))
}

func (api *API) deleteCategory(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionDelete, policy.ResourceCategory, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	if err := api.repo.DeleteCategory(ctx.Request.Context(), ctx.Param("slug")); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// Genres

func (api *API) listGenres(ctx *gin.Context) {
	req, err := pageRequest(ctx)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	genres, count, err := api.repo.ListGenres(ctx.Request.Context(), ctx.Query("search"), req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	page, err := newPage(ctx, req, genres, count, models.NewGenreResponse)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, page)
}

func (api *API) createGenre(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionCreate, policy.ResourceGenre, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	var req models.GenreRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}

	genre := &models.Genre{Name: req.Name, Slug: req.Slug}
	if err := api.repo.CreateGenre(ctx.Request.Context(), genre); err != nil {
		api.writeError(ctx, slugConflict(err, "Жанр"))
		return
	}
	ctx.JSON(http.StatusCreated, models.NewGenreResponse(genre))
}

func (api *API) getGenre(ctx *gin.Context) {
	genre, err := api.repo.GetGenreBySlug(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.NewGenreResponse(genre))
}

func (api *API) deleteGenre(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionDelete, policy.ResourceGenre, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	if err := api.repo.DeleteGenre(ctx.Request.Context(), ctx.Param("slug")); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func slugConflict(err error, kind string) error {
	if errors.Is(err, errors.ErrSlugTaken) {
		return errors.NewConflictError("slug", kind+" с таким slug уже существует.")
	}
	return err
}

// Titles

func titleFilter(ctx *gin.Context) (models.TitleFilter, error) {
	filter := models.TitleFilter{
		Name:     ctx.Query("name"),
		Genre:    ctx.Query("genre"),
		Category: ctx.Query("category"),
	}
	if v := ctx.Query("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return filter, errors.NewValidationError("year", "Введите целое число.")
		}
		filter.Year = &year
	}
	return filter, nil
}

func (api *API) listTitles(ctx *gin.Context) {
	filter, err := titleFilter(ctx)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	req, err := pageRequest(ctx)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	titles, count, err := api.repo.ListTitles(ctx.Request.Context(), filter, req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	page, err := newPage(ctx, req, titles, count, models.NewTitleResponse)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, page)
}

func (api *API) loadTitle(ctx *gin.Context) (*models.Title, bool) {
	id, err := idParam(ctx, "title_id", errors.ErrTitleNotFound)
	if err == nil {
		var title *models.Title
		if title, err = api.repo.GetTitle(ctx.Request.Context(), id); err == nil {
			return title, true
		}
	}
	api.writeError(ctx, err)
	return nil, false
}

func (api *API) getTitle(ctx *gin.Context) {
	title, ok := api.loadTitle(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, models.NewTitleResponse(title))
}

func (api *API) createTitle(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionCreate, policy.ResourceTitle, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	var req models.CreateTitleRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}

	title := &models.Title{Name: req.Name, Year: req.Year, Description: req.Description}
	if err := api.resolveTitleRefs(ctx.Request.Context(), title, &req.Category, &req.Genre); err != nil {
		api.writeError(ctx, err)
		return
	}
	if err := api.repo.CreateTitle(ctx.Request.Context(), title); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, models.NewTitleResponse(title))
}

func (api *API) updateTitle(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionUpdate, policy.ResourceTitle, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	title, ok := api.loadTitle(ctx)
	if !ok {
		return
	}
	var req models.UpdateTitleRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}
	if req.Genre != nil && len(*req.Genre) == 0 {
		api.writeError(ctx, errors.NewValidationError("genre", "Это поле не может быть пустым."))
		return
	}

	if req.Name != nil {
		title.Name = *req.Name
	}
	if req.Year != nil {
		title.Year = *req.Year
	}
	if req.Description != nil {
		title.Description = *req.Description
	}
	if err := api.resolveTitleRefs(ctx.Request.Context(), title, req.Category.Patch(), req.Genre); err != nil {
		api.writeError(ctx, err)
		return
	}
	if err := api.repo.UpdateTitle(ctx.Request.Context(), title); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.NewTitleResponse(title))
}

func (api *API) deleteTitle(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionDelete, policy.ResourceTitle, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	id, err := idParam(ctx, "title_id", errors.ErrTitleNotFound)
	if err == nil {
		err = api.repo.DeleteTitle(ctx.Request.Context(), id)
	}
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// resolveTitleRefs turns category and genre slugs into stored objects. A nil
// pointer leaves the current value alone; an empty category slug clears it,
// and so does an explicit null on update.
func (api *API) resolveTitleRefs(ctx context.Context, title *models.Title, category *string, genres *[]string) error {
	result := &errors.ValidationError{Kind: errors.ErrInvalidInput}

	if category != nil {
		title.Category = nil
		if *category != "" {
			c, err := api.repo.GetCategoryBySlug(ctx, *category)
			switch {
			case err == nil:
				title.Category = c
			case errors.Is(err, errors.ErrNotFound):
				result.Add("category", missingSlug(*category))
			default:
				return err
			}
		}
	}

	if genres != nil {
		resolved := make([]models.Genre, 0, len(*genres))
		for _, slug := range *genres {
			g, err := api.repo.GetGenreBySlug(ctx, slug)
			switch {
			case err == nil:
				resolved = append(resolved, *g)
			case errors.Is(err, errors.ErrNotFound):
				result.Add("genre", missingSlug(slug))
			default:
				return err
			}
		}
		title.Genres = resolved
	}

	if len(result.Fields) > 0 {
		return result
	}
	return nil
}

func missingSlug(slug string) string {
	return fmt.Sprintf("Объект с slug=%s не существует.", slug)
}
