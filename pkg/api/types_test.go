package api

import "testing"

func TestUserCan(t *testing.T) {
	t.Parallel()

	user := &User{
		Permissions: []Permission{
			{Resource: "billing", CanAccess: true},
			{Resource: "reports", CanAccess: false},
		},
	}

	tests := []struct {
		name     string
		user     *User
		resource string
		want     bool
	}{
		{"granted entry", user, "billing", true},
		{"denied entry", user, "reports", false},
		{"absent entry", user, "admin", false},
		{"nil user", nil, "billing", false},
		{"admin bypasses entries", &User{IsAdmin: true}, "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.Can(tt.resource); got != tt.want {
				t.Errorf("Can(%q) = %t, want %t", tt.resource, got, tt.want)
			}
		})
	}
}
