package service

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const ctxPrincipalKey ctxKey = "principal"

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleRider    Role = "RIDER"
	RoleStaff    Role = "STAFF"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleRider || r == RoleStaff
}

// Principal is the authenticated caller. StoreID and IsManager are only set for staff.
type Principal struct {
	UserID    uuid.UUID
	Role      Role
	StoreID   uuid.UUID
	IsManager bool
}

func (p Principal) IsStaffOf(storeID uuid.UUID) bool {
	return p.Role == RoleStaff && p.StoreID == storeID
}

func (p Principal) IsManagerOf(storeID uuid.UUID) bool {
	return p.IsStaffOf(storeID) && p.IsManager
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v, ok := ctx.Value(ctxPrincipalKey).(Principal)
	return v, ok
}

func requireAuth(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == uuid.Nil {
		return Principal{}, ErrUnauthorized
	}
	return p, nil
}
