// Package policy decides whether an actor may perform an action on a
// resource. A nil actor is an anonymous request.
package policy

import (
	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"
)

type Action int

const (
	ActionList Action = iota
	ActionRetrieve
	ActionCreate
	ActionUpdate
	ActionDelete
)

func (a Action) IsRead() bool {
	return a == ActionList || a == ActionRetrieve
}

type Resource int

const (
	ResourceCategory Resource = iota
	ResourceGenre
	ResourceTitle
	ResourceReview
	ResourceComment
	ResourceUser
)

const (
	rankAnonymous = iota
	rankUser
	rankModerator
	rankAdmin
)

// Rank orders roles by privilege. Unknown roles rank as plain users.
func Rank(role models.Role) int {
	switch role {
	case models.RoleAdmin:
		return rankAdmin
	case models.RoleModerator:
		return rankModerator
	default:
		return rankUser
	}
}

func ActorRank(actor *models.User) int {
	if actor == nil {
		return rankAnonymous
	}
	if actor.IsSuperuser {
		return rankAdmin
	}
	return Rank(actor.Role)
}

func IsAdmin(actor *models.User) bool {
	return ActorRank(actor) >= rankAdmin
}

func IsModerator(actor *models.User) bool {
	return ActorRank(actor) >= rankModerator
}

// Authorize returns nil when allowed, ErrUnauthenticated when an anonymous
// actor needs to log in, and ErrForbidden otherwise. authorID is the owner
// of the target object and is ignored for unowned resources.
func Authorize(actor *models.User, action Action, resource Resource, authorID int64) error {
	switch resource {
	case ResourceCategory, ResourceGenre, ResourceTitle:
		if action.IsRead() {
			return nil
		}
		return require(actor, IsAdmin(actor))

	case ResourceReview, ResourceComment:
		if action.IsRead() {
			return nil
		}
		if action == ActionCreate {
			return require(actor, true)
		}
		return require(actor, IsOwner(actor, authorID) || IsModerator(actor))

	case ResourceUser:
		return require(actor, IsAdmin(actor))
	}
	return errors.ErrForbidden
}

// AuthorizeSelf covers the /users/me endpoint: any authenticated actor may
// read or update their own profile but never delete it.
func AuthorizeSelf(actor *models.User, action Action) error {
	if actor == nil {
		return errors.ErrUnauthenticated
	}
	if action == ActionDelete {
		return errors.ErrSelfDelete
	}
	return nil
}

// AuthorizeUserDelete lets admins remove any account except their own.
func AuthorizeUserDelete(actor *models.User, target *models.User) error {
	if err := Authorize(actor, ActionDelete, ResourceUser, 0); err != nil {
		return err
	}
	if target != nil && target.ID == actor.ID {
		return errors.ErrSelfDelete
	}
	return nil
}

func IsOwner(actor *models.User, authorID int64) bool {
	return actor != nil && authorID != 0 && actor.ID == authorID
}

func require(actor *models.User, allowed bool) error {
	if actor == nil {
		return errors.ErrUnauthenticated
	}
	if !allowed {
		return errors.ErrForbidden
	}
	return nil
}
