package api

// User is the account record returned by the Auth API. Identity is ID;
// Email is the external-facing handle used during OTP login.
type User struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	IsVerified  bool         `json:"isVerified"`
	IsAdmin     bool         `json:"isAdmin"`
	Permissions []Permission `json:"permissions"`
}

// Permission grants or denies access to a single named resource.
type Permission struct {
	Resource  string `json:"resource"`
	CanAccess bool   `json:"canAccess"`
}

// Can reports whether the user's permission entries grant access to a
// resource. Admins implicitly have access to everything; their
// permission entries are not authoritative.
func (u *User) Can(resource string) bool {
	if u == nil {
		return false
	}
	if u.IsAdmin {
		return true
	}
	for _, p := range u.Permissions {
		if p.Resource == resource {
			return p.CanAccess
		}
	}
	return false
}

// ValidationResult is the response to a validate call.
// HasResourceAccess is present only when the request named a resource.
type ValidationResult struct {
	Valid             bool  `json:"valid"`
	User              *User `json:"user,omitempty"`
	HasResourceAccess *bool `json:"hasResourceAccess,omitempty"`
}

// VerifyResult is the response to a successful OTP verification.
type VerifyResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
