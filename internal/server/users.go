package server

import (
	"context"
	"net/http"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"
	"yamdb/internal/policy"

	"github.com/gin-gonic/gin"
)

func (api *API) signup(ctx *gin.Context) {
	var req models.SignupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.writeError(ctx, errors.ErrBadRequest)
		return
	}

	user, err := api.registration.Signup(ctx.Request.Context(), req.Username, req.Email)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.SignupResponse{Username: user.Username, Email: user.Email})
}

func (api *API) obtainToken(ctx *gin.Context) {
	var req models.TokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.writeError(ctx, errors.ErrBadRequest)
		return
	}

	tok, err := api.registration.ObtainToken(ctx.Request.Context(), req.Username, req.ConfirmationCode)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	api.setTokenCookie(ctx, tok)
	ctx.JSON(http.StatusOK, models.TokenResponse{Token: tok, AccessToken: tok})
}

func (api *API) listUsers(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionList, policy.ResourceUser, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	req, err := pageRequest(ctx)
	if err != nil {
		api.writeError(ctx, err)
		return
	}

	users, count, err := api.repo.ListUsers(ctx.Request.Context(), ctx.Query("search"), req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	page, err := newPage(ctx, req, users, count, models.NewUserResponse)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, page)
}

func (api *API) createUser(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionCreate, policy.ResourceUser, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	var req models.CreateUserRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}

	user := &models.User{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
		Role:      models.RoleUser,
	}
	if req.Role != "" {
		user.Role = models.Role(req.Role)
	}
	if err := api.checkUserUnique(ctx.Request.Context(), user); err != nil {
		api.writeError(ctx, err)
		return
	}
	if err := api.repo.CreateUser(ctx.Request.Context(), user); err != nil {
		api.writeError(ctx, userConflict(err))
		return
	}
	ctx.JSON(http.StatusCreated, models.NewUserResponse(user))
}

func (api *API) getMe(ctx *gin.Context) {
	me := actor(ctx)
	if err := policy.AuthorizeSelf(me, policy.ActionRetrieve); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.NewUserResponse(me))
}

// updateMe never changes the role, whatever the body says.
func (api *API) updateMe(ctx *gin.Context) {
	me := actor(ctx)
	if err := policy.AuthorizeSelf(me, policy.ActionUpdate); err != nil {
		api.writeError(ctx, err)
		return
	}
	var req models.UpdateUserRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}
	req.Role = nil

	user := *me
	api.patchUser(ctx, &user, &req)
}

func (api *API) deleteMe(ctx *gin.Context) {
	api.writeError(ctx, policy.AuthorizeSelf(actor(ctx), policy.ActionDelete))
}

func (api *API) loadUser(ctx *gin.Context) (*models.User, bool) {
	user, err := api.repo.GetUserByUsername(ctx.Request.Context(), ctx.Param("username"))
	if err != nil {
		api.writeError(ctx, err)
		return nil, false
	}
	return user, true
}

func (api *API) getUser(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionRetrieve, policy.ResourceUser, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	user, ok := api.loadUser(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, models.NewUserResponse(user))
}

func (api *API) updateUser(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionUpdate, policy.ResourceUser, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	user, ok := api.loadUser(ctx)
	if !ok {
		return
	}
	var req models.UpdateUserRequest
	if err := bind(ctx, &req); err != nil {
		api.writeError(ctx, err)
		return
	}
	api.patchUser(ctx, user, &req)
}

func (api *API) deleteUser(ctx *gin.Context) {
	if err := policy.Authorize(actor(ctx), policy.ActionDelete, policy.ResourceUser, 0); err != nil {
		api.writeError(ctx, err)
		return
	}
	user, ok := api.loadUser(ctx)
	if !ok {
		return
	}
	if err := policy.AuthorizeUserDelete(actor(ctx), user); err != nil {
		api.writeError(ctx, err)
		return
	}
	if err := api.repo.DeleteUser(ctx.Request.Context(), user.ID); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// patchUser applies the present fields and saves. Any profile change voids a
// pending confirmation code.
func (api *API) patchUser(ctx *gin.Context, user *models.User, req *models.UpdateUserRequest) {
	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.Role != nil {
		user.Role = models.Role(*req.Role)
	}
	user.ConfirmationCodeHash = ""

	if err := api.checkUserUnique(ctx.Request.Context(), user); err != nil {
		api.writeError(ctx, err)
		return
	}
	if err := api.repo.UpdateUser(ctx.Request.Context(), user); err != nil {
		api.writeError(ctx, userConflict(err))
		return
	}
	ctx.JSON(http.StatusOK, models.NewUserResponse(user))
}

// checkUserUnique reports which of username and email already belong to
// another account.
func (api *API) checkUserUnique(ctx context.Context, user *models.User) error {
	result := &errors.ValidationError{Kind: errors.ErrConflict}

	other, err := api.repo.GetUserByUsername(ctx, user.Username)
	switch {
	case err == nil && other.ID != user.ID:
		result.Add("username", "Пользователь с таким username уже существует.")
	case err != nil && !errors.Is(err, errors.ErrNotFound):
		return err
	}

	other, err = api.repo.GetUserByEmail(ctx, user.Email)
	switch {
	case err == nil && other.ID != user.ID:
		result.Add("email", "Пользователь с таким email уже существует.")
	case err != nil && !errors.Is(err, errors.ErrNotFound):
		return err
	}

	if len(result.Fields) > 0 {
		return result
	}
	return nil
}

func userConflict(err error) error {
	if errors.Is(err, errors.ErrUserAlreadyExists) {
		return errors.NewConflictError("username", "Пользователь с таким username или email уже существует.")
	}
	return err
}
