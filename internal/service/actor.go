package service

import "github.com/noah-isme/fasch-registrar-api/internal/models"

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   models.UserRole
}

// ActorFromClaims builds an Actor from access token claims.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role}
}

// IsStaff reports whether the actor administers the registrar.
func (a Actor) IsStaff() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleSuperuser
}

func (a Actor) idPtr() *string {
	if a.UserID == "" {
		return nil
	}
	id := a.UserID
	return &id
}
