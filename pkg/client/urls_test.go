package client

import "testing"

func TestAppendToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		url   string
		token string
		want  string
	}{
		{"no query", "https://app.example.com/map", "abc", "https://app.example.com/map?token=abc"},
		{"existing query", "https://app.example.com/map?floor=2", "abc", "https://app.example.com/map?floor=2&token=abc"},
		{"token needs escaping", "https://app.example.com/", "a b+c", "https://app.example.com/?token=a+b%2Bc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AppendToken(tt.url, tt.token); got != tt.want {
				t.Errorf("AppendToken(%q, %q) = %q, want %q", tt.url, tt.token, got, tt.want)
			}
		})
	}
}

func TestBuildLoginURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		login    string
		callback string
		want     string
	}{
		{"plain", "https://login.example.com", "https://app.example.com/map", "https://login.example.com?callback=https%3A%2F%2Fapp.example.com%2Fmap"},
		{"login has query", "https://login.example.com?brand=x", "https://a/", "https://login.example.com?brand=x&callback=https%3A%2F%2Fa%2F"},
		{"no callback", "https://login.example.com", "", "https://login.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildLoginURL(tt.login, tt.callback); got != tt.want {
				t.Errorf("BuildLoginURL(%q, %q) = %q, want %q", tt.login, tt.callback, got, tt.want)
			}
		})
	}
}

func TestExtractTokenParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		url          string
		wantToken    string
		wantStripped string
		wantFound    bool
	}{
		{
			"token between params",
			"https://app.example.com/map?foo=1&token=X&bar=2",
			"X",
			"https://app.example.com/map?foo=1&bar=2",
			true,
		},
		{
			"token only",
			"https://app.example.com/map?token=X",
			"X",
			"https://app.example.com/map",
			true,
		},
		{
			"token first",
			"https://app.example.com/?token=X&a=b",
			"X",
			"https://app.example.com/?a=b",
			true,
		},
		{
			"encoded token value",
			"https://a/?token=a%20b",
			"a b",
			"https://a/",
			true,
		},
		{
			// neighbouring segments must survive byte for byte,
			// including unusual but legal encodings
			"odd neighbour encoding preserved",
			"https://a/p?q=a%2Bb%20c&token=X&r==&s",
			"X",
			"https://a/p?q=a%2Bb%20c&r==&s",
			true,
		},
		{
			"no token",
			"https://app.example.com/map?foo=1",
			"",
			"https://app.example.com/map?foo=1",
			false,
		},
		{
			"no query",
			"https://app.example.com/map",
			"",
			"https://app.example.com/map",
			false,
		},
		{
			"token in path not query",
			"https://app.example.com/token",
			"",
			"https://app.example.com/token",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, stripped, found := extractTokenParam(tt.url)
			if found != tt.wantFound {
				t.Fatalf("found = %t, want %t", found, tt.wantFound)
			}
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
			if stripped != tt.wantStripped {
				t.Errorf("stripped = %q, want %q", stripped, tt.wantStripped)
			}
		})
	}
}
