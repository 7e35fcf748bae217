package auth

import (
	apperrors "roomres/pkg/errors"
	"roomres/pkg/model"
)

// Authorize decides whether caller may act on a resource owned by
// resourceOwner with at least the required role. An empty resourceOwner
// means the resource has no owner and only the role is checked. Admins are
// always allowed.
func Authorize(caller *model.Caller, resourceOwner string, required model.Role) error {
	if caller == nil {
		return apperrors.Unauthorized("Authentication required")
	}
	if caller.IsAdmin() {
		return nil
	}
	if !caller.Role.AtLeast(required) {
		return apperrors.Forbidden("Insufficient role for this operation")
	}
	if resourceOwner != "" && resourceOwner != caller.Username {
		return apperrors.Forbidden("You can only access your own bookings")
	}
	return nil
}
