package jwttoken

import (
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
)

// ActorValidator turns a bearer token into the caller it names. It is the
// only place role strings from a token become domain roles.
type ActorValidator struct {
	service *JWTService
}

func NewActorValidator(service *JWTService) *ActorValidator {
	return &ActorValidator{service: service}
}

// ValidateToken checks the signature and registered claims, then maps the
// token to a domain.Actor. The user_id claim must agree with the subject.
// Role names outside the domain vocabulary are dropped, and a token left
// with no known role is refused.
func (a *ActorValidator) ValidateToken(tokenString string) (domain.Actor, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return domain.Actor{}, err
	}
	return ToActor(claims)
}

func ToActor(claims *Claims) (domain.Actor, error) {
	userID, err := domain.ParseUserID(claims.UserID)
	if err != nil {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	if claims.Subject != "" && claims.Subject != claims.UserID {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token subject does not match user")
	}
	roles := domain.ParseRoleSet(claims.Roles)
	if len(roles) == 0 {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token carries no known role")
	}
	return domain.Actor{UserID: userID, Roles: roles}, nil
}
