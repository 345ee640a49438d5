package models

import "testing"

func TestUser_ZeroValue(t *testing.T) {
	var u User
	if u.IsAdmin {
		t.Error("zero-value User should not be an admin")
	}
	if u.ID != "" || u.Email != "" {
		t.Error("zero-value User should have empty identity fields")
	}
}
