package auth

import (
	"testing"

	apperrors "roomres/pkg/errors"
	"roomres/pkg/model"
)

func TestAuthorize(t *testing.T) {
	alice := &model.Caller{Username: "alice", Role: model.RoleRegular}
	admin := &model.Caller{Username: "root", Role: model.RoleAdmin}
	stranger := &model.Caller{Username: "mallory", Role: model.Role("guest")}

	tests := []struct {
		name     string
		caller   *model.Caller
		owner    string
		required model.Role
		wantCode string
	}{
		{"no caller", nil, "alice", model.RoleRegular, apperrors.CodeUnauthorized},
		{"owner", alice, "alice", model.RoleRegular, ""},
		{"no owner", alice, "", model.RoleRegular, ""},
		{"other owner", alice, "bob", model.RoleRegular, apperrors.CodeForbidden},
		{"admin on other owner", admin, "bob", model.RoleRegular, ""},
		{"admin-only operation", alice, "", model.RoleAdmin, apperrors.CodeForbidden},
		{"admin on admin-only operation", admin, "", model.RoleAdmin, ""},
		{"unknown role", stranger, "mallory", model.RoleRegular, apperrors.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.caller, tt.owner, tt.required)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("expected allow, got %v", err)
				}
				return
			}
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}
