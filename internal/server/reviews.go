package server

import (
	"net/http"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"
	"yamdb/internal/policy"

	"github.com/gin-gonic/gin"
)

const duplicateReviewField = "non_field_errors"

// requireActor rejects anonymous writes before any lookup, so a missing
// object never hides the need to log in.
func (api *API) requireActor(ctx *gin.Context) (*models.User, bool) {
	me := actor(ctx)
	if me == nil {
		api.writeError(ctx, errors.ErrUnauthenticated)
		return nil, false
	}
	return me, true
}

// Reviews

func (api *API) loadReview(ctx *gin.Context) (*models.Review, bool) {
	title, ok := api.loadTitle(ctx)
	if !ok {
		return nil, false
	}
	id, err := idParam(ctx, "review_id", errors.ErrReviewNotFound)
	if err == nil {
		var review *models.Review
		if review, err = api.repo.GetReview(ctx.Request.Context(), title.ID, id); err == nil {
			return review, true
		}
	}
	api.writeError(ctx, err)
	return nil, false
}

func (api *API) listReviews(ctx *gin.Context) {
	title, ok := api.loadTitle(ctx)
	if !ok {
		return
	}
	req, err := pageRequest(ctx)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	reviews, count, err := api.repo.ListReviews(ctx.Request.Context(), title.ID, req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	page, err := newPage(ctx, req, reviews, count, models.NewReviewResponse)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, page)
}

func (api *API) getReview(ctx *gin.Context) {
	review, ok := api.loadReview(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, models.NewReviewResponse(review))
}

func (api *API) createReview(ctx *gin.Context) {
	me, ok := api.requireActor(ctx)
	if !ok {
		return
	}
	if err := policy.Authorize(me, policy.ActionCreate, policy.ResourceReview, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	title, ok := api.loadTitle(ctx)
	if !ok {
		return
	}
	var req models.ReviewRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}

	exists, err := api.repo.HasReview(ctx.Request.Context(), title.ID, me.ID)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	if exists {
		api.writeError(ctx, duplicateReview())
		return
	}

	review := &models.Review{TitleID: title.ID, AuthorID: me.ID, Text: req.Text, Score: req.Score}
	if err := api.repo.CreateReview(ctx.Request.Context(), review); err != nil {
		if errors.Is(err, errors.ErrDuplicateReview) {
			err = duplicateReview()
		}
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, models.NewReviewResponse(review))
}

func duplicateReview() error {
	return errors.NewConflictError(duplicateReviewField, errors.ErrDuplicateReview.Error())
}

func (api *API) updateReview(ctx *gin.Context) {
	me, ok := api.requireActor(ctx)
	if !ok {
		return
	}
	review, ok := api.loadReview(ctx)
	if !ok {
		return
	}
	if err := policy.Authorize(me, policy.ActionUpdate, policy.ResourceReview, review.AuthorID); err != nil {
		api.writeError(ctx, err)
		return
	}
	var req models.UpdateReviewRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}

	if req.Text != nil {
		review.Text = *req.Text
	}
	if req.Score != nil {
		review.Score = *req.Score
	}
	if err := api.repo.UpdateReview(ctx.Request.Context(), review); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.NewReviewResponse(review))
}

func (api *API) deleteReview(ctx *gin.Context) {
	me, ok := api.requireActor(ctx)
	if !ok {
		return
	}
	review, ok := api.loadReview(ctx)
	if !ok {
		return
	}
	if err := policy.Authorize(me, policy.ActionDelete, policy.ResourceReview, review.AuthorID); err != nil {
		api.writeError(ctx, err)
		return
	}
	if err := api.repo.DeleteReview(ctx.Request.Context(), review.ID); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// Comments

func (api *API) loadComment(ctx *gin.Context) (*models.Comment, bool) {
	review, ok := api.loadReview(ctx)
	if !ok {
		return nil, false
	}
	id, err := idParam(ctx, "comment_id", errors.ErrCommentNotFound)
	if err == nil {
		var comment *models.Comment
		if comment, err = api.repo.GetComment(ctx.Request.Context(), review.ID, id); err == nil {
			return comment, true
		}
	}
	api.writeError(ctx, err)
	return nil, false
}

func (api *API) listComments(ctx *gin.Context) {
	review, ok := api.loadReview(ctx)
	if !ok {
		return
	}
	req, err := pageRequest(ctx)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	comments, count, err := api.repo.ListComments(ctx.Request.Context(), review.ID, req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	page, err := newPage(ctx, req, comments, count, models.NewCommentResponse)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, page)
}

func (api *API) getComment(ctx *gin.Context) {
	comment, ok := api.loadComment(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, models.NewCommentResponse(comment))
}

func (api *API) createComment(ctx *gin.Context) {
	me, ok := api.requireActor(ctx)
	if !ok {
		return
	}
	if err := policy.Authorize(me, policy.ActionCreate, policy.ResourceComment, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	review, ok := api.loadReview(ctx)
	if !ok {
		return
	}
	var req models.CommentRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}

	comment := &models.Comment{ReviewID: review.ID, AuthorID: me.ID, Text: req.Text}
	if err := api.repo.CreateComment(ctx.Request.Context(), comment); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, models.NewCommentResponse(comment))
}

func (api *API) updateComment(ctx *gin.Context) {
	me, ok := api.requireActor(ctx)
	if !ok {
		return
	}
	comment, ok := api.loadComment(ctx)
	if !ok {
		return
	}
	if err := policy.Authorize(me, policy.ActionUpdate, policy.ResourceComment, comment.AuthorID); err != nil {
		api.writeError(ctx, err)
		return
	}
	var req models.UpdateCommentRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}

	if req.Text != nil {
		comment.Text = *req.Text
	}
	if err := api.repo.UpdateComment(ctx.Request.Context(), comment); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.NewCommentResponse(comment))
}

func (api *API) deleteComment(ctx *gin.Context) {
	me, ok := api.requireActor(ctx)
	if !ok {
		return
	}
	comment, ok := api.loadComment(ctx)
	if !ok {
		return
	}
	if err := policy.Authorize(me, policy.ActionDelete, policy.ResourceComment, comment.AuthorID); err != nil {
		api.writeError(ctx, err)
		return
	}
	if err := api.repo.DeleteComment(ctx.Request.Context(), comment.ID); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
