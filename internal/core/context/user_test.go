package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasRole(t *testing.T) {
	pharmacist := &UserContext{UserID: "u1", Roles: []string{RolePharmacist}}
	admin := &UserContext{UserID: "u2", Roles: []string{RoleAdmin}}
	var nobody *UserContext

	assert.True(t, pharmacist.HasRole(RolePharmacist, RoleManager))
	assert.False(t, pharmacist.HasRole(RoleManager))
	assert.True(t, admin.HasRole(RoleManager))
	assert.False(t, nobody.HasRole(RolePharmacist))
}

func TestUserRoundTripThroughContext(t *testing.T) {
	ctx := WithUser(context.Background(), &UserContext{UserID: "u1"})

	assert.Equal(t, "u1", GetUserID(ctx))
	assert.Equal(t, "", GetUserID(context.Background()))
}
