package handlers

import (
	"fmt"
	"net/http"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/auth"
)

func caller(r *http.Request) (auth.Claims, error) {
	cl, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Claims{}, apperr.ErrUnauthorized
	}
	return cl, nil
}

// allow returns the caller if its role is one of roles.
func allow(r *http.Request, roles ...auth.Role) (auth.Claims, error) {
	cl, err := caller(r)
	if err != nil {
		return cl, err
	}
	for _, role := range roles {
		if cl.Role == role {
			return cl, nil
		}
	}
	return cl, fmt.Errorf("role %s: %w", cl.Role, apperr.ErrNotOwner)
}

// self checks that a courier acts on its own id. Admins may act on anyone.
func self(cl auth.Claims, courierID int64) error {
	if cl.Role == auth.RoleAdmin || (cl.Role == auth.RoleCourier && cl.SubjectID == courierID) {
		return nil
	}
	return fmt.Errorf("courier %d: %w", courierID, apperr.ErrNotOwner)
}
