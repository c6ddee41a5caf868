package qbsync

import (
	"testing"

	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

func TestAuthorizeRealmAccess(t *testing.T) {
	admin := &models.User{Username: "admin", Role: models.UserRoleAdmin, RealmId: "realm-1"}
	operator := &models.User{Username: "op", Role: models.UserRoleOperator, RealmId: "realm-1"}

	if err := authorizeRealmAccess(admin, "realm-2"); err != nil {
		t.Errorf("admin must reach any realm: %v", err)
	}
	if err := authorizeRealmAccess(operator, "realm-1"); err != nil {
		t.Errorf("operator must reach their own realm: %v", err)
	}
	if err := authorizeRealmAccess(operator, "realm-2"); err == nil {
		t.Error("operator must not reach another realm")
	}
}
