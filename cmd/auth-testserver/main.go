// auth-testserver runs the mock inMapper Auth API as a standalone
// binary for local development: seedable accounts, OTP codes printed
// to the log in place of email delivery, and an optional hot-reloaded
// callback-origin allow-list.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/inmapper/authkit/pkg/api"
	"github.com/inmapper/authkit/pkg/authtest"
)

type userFlag []string

func (u *userFlag) String() string {
	return fmt.Sprintf("%v", *u)
}

func (u *userFlag) Set(value string) error {
	*u = append(*u, value)
	return nil
}

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:0", "listen address (port 0 picks an ephemeral port)")
		dbPath    = flag.String("db", ":memory:", "sqlite database path")
		allowlist = flag.String("allowlist", "", "path to a JSON array of allowed callback origins")
		users     userFlag
	)
	flag.Var(&users, "user", "seed a verified account: email[:resource=yes|no,...] (repeatable)")
	flag.Parse()

	store, err := authtest.NewStore(*dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v\n", err)
	}
	defer store.Close()

	server := authtest.NewWithStore(store)
	server.LogCodes(true)

	if *allowlist != "" {
		list, err := authtest.LoadAllowlist(*allowlist)
		if err != nil {
			log.Fatalf("failed to load allowlist: %v\n", err)
		}
		server.SetAllowlist(list)
	}

	for _, entry := range users {
		user, err := parseUser(entry)
		if err != nil {
			log.Fatalf("bad -user value %q: %v\n", entry, err)
		}
		if _, err := server.Seed(user); err != nil {
			log.Fatalf("failed to seed %s: %v\n", user.Email, err)
		}
		log.Printf("seeded account %s\n", user.Email)
	}

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("failed to listen: %v\n", err)
	}
	defer listener.Close()

	log.Printf("auth api listening on http://%s\n", listener.Addr())
	log.Fatal(http.Serve(listener, server.Router()))
}

// parseUser parses "email" or "email:billing=yes,admin=no[,admin-flag]".
func parseUser(entry string) (api.User, error) {
	user := api.User{IsVerified: true}

	parts := strings.SplitN(entry, ":", 2)
	user.Email = parts[0]
	if user.Email == "" {
		return user, fmt.Errorf("email is required")
	}
	if len(parts) == 1 {
		return user, nil
	}

	for _, grant := range strings.Split(parts[1], ",") {
		if grant == "admin-flag" {
			user.IsAdmin = true
			continue
		}
		kv := strings.SplitN(grant, "=", 2)
		if len(kv) != 2 || (kv[1] != "yes" && kv[1] != "no") {
			return user, fmt.Errorf("grant must be resource=yes|no, got %q", grant)
		}
		user.Permissions = append(user.Permissions, api.Permission{
			Resource:  kv[0],
			CanAccess: kv[1] == "yes",
		})
	}
	return user, nil
}
