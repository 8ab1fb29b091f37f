package authtest

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/inmapper/authkit/pkg/api"
	_ "modernc.org/sqlite"
)

// Store is the SQLite persistence behind the test server: accounts,
// permission grants, pending OTP codes (bcrypt-hashed), and issued
// tokens. Use ":memory:" for test isolation.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	if err := initTable(db, "account", `
		CREATE TABLE IF NOT EXISTS account (
			id        TEXT PRIMARY KEY,
			email     TEXT UNIQUE NOT NULL,
			name      TEXT NOT NULL DEFAULT '',
			verified  INTEGER NOT NULL DEFAULT 0,
			admin     INTEGER NOT NULL DEFAULT 0
		);`,
	); err != nil {
		return err
	}

	if err := initTable(db, "permission", `
		CREATE TABLE IF NOT EXISTS permission (
			account_id  TEXT NOT NULL,
			resource    TEXT NOT NULL,
			can_access  INTEGER NOT NULL,
			PRIMARY KEY (account_id, resource),
			FOREIGN KEY (account_id) REFERENCES account (id)
		);`,
	); err != nil {
		return err
	}

	if err := initTable(db, "code", `
		CREATE TABLE IF NOT EXISTS code (
			email       TEXT PRIMARY KEY,
			hash        BLOB NOT NULL,
			expiration  INTEGER NOT NULL
		);`,
	); err != nil {
		return err
	}

	if err := initTable(db, "token", `
		CREATE TABLE IF NOT EXISTS token (
			token       TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL,
			FOREIGN KEY (account_id) REFERENCES account (id)
		);`,
	); err != nil {
		return err
	}

	return nil
}

func initTable(
	db *sql.DB,
	name string,
	sql string,
) error {
	if _, err := db.Exec(sql); err != nil {
		return fmt.Errorf("couldn't init '%s' table schema: %w", name, err)
	}
	return nil
}

func (s *Store) insertAccount(email, name string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO account (id, email, name)
		VALUES (?, ?, ?);`,
		id,
		email,
		name,
	)
	if err != nil {
		return "", fmt.Errorf("couldn't insert into account: %w", err)
	}
	return id, nil
}

func (s *Store) getUserByEmail(email string) (*api.User, error) {
	row := s.db.QueryRow(`
		SELECT id, email, name, verified, admin
		FROM account
		WHERE email=?;`,
		email,
	)
	return s.scanUser(row)
}

func (s *Store) getUserByToken(token string) (*api.User, error) {
	row := s.db.QueryRow(`
		SELECT a.id, a.email, a.name, a.verified, a.admin
		FROM account a
		JOIN token t ON t.account_id=a.id
		WHERE t.token=?;`,
		token,
	)
	return s.scanUser(row)
}

// scanUser builds a full User record, permissions included. A nil user
// with nil error means no matching row.
func (s *Store) scanUser(row *sql.Row) (*api.User, error) {
	user := &api.User{}
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.IsVerified, &user.IsAdmin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("couldn't scan account: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT resource, can_access
		FROM permission
		WHERE account_id=?;`,
		user.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("couldn't query permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p api.Permission
		if err := rows.Scan(&p.Resource, &p.CanAccess); err != nil {
			return nil, fmt.Errorf("couldn't scan permission: %w", err)
		}
		user.Permissions = append(user.Permissions, p)
	}
	return user, rows.Err()
}

func (s *Store) setVerified(email string) error {
	_, err := s.db.Exec(`
		UPDATE account
		SET verified=1
		WHERE email=?;`,
		email,
	)
	if err != nil {
		return fmt.Errorf("couldn't mark account verified: %w", err)
	}
	return nil
}

func (s *Store) setPermission(accountID, resource string, canAccess bool) error {
	_, err := s.db.Exec(`
		INSERT INTO permission (account_id, resource, can_access)
		VALUES (?, ?, ?)
		ON CONFLICT (account_id, resource) DO UPDATE SET can_access=excluded.can_access;`,
		accountID,
		resource,
		canAccess,
	)
	if err != nil {
		return fmt.Errorf("couldn't upsert permission: %w", err)
	}
	return nil
}

// storeCode replaces any pending code for email. Only the bcrypt hash
// is persisted.
func (s *Store) storeCode(email, code string, expiration time.Time) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("couldn't hash code: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO code (email, hash, expiration)
		VALUES (?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET hash=excluded.hash, expiration=excluded.expiration;`,
		email,
		hash,
		expiration.Unix(),
	)
	if err != nil {
		return fmt.Errorf("couldn't insert code: %w", err)
	}
	return nil
}

// checkCode consumes the pending code for email when it matches and is
// unexpired.
func (s *Store) checkCode(email, code string, now time.Time) (bool, error) {
	row := s.db.QueryRow(`
		SELECT hash, expiration
		FROM code
		WHERE email=?;`,
		email,
	)

	var hash []byte
	var expiration int64
	err := row.Scan(&hash, &expiration)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("couldn't scan code: %w", err)
	}

	if now.Unix() > expiration {
		return false, nil
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(code)) != nil {
		return false, nil
	}

	_, err = s.db.Exec(`DELETE FROM code WHERE email=?;`, email)
	if err != nil {
		return false, fmt.Errorf("couldn't consume code: %w", err)
	}
	return true, nil
}

func (s *Store) hasPendingCode(email string) (bool, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM code WHERE email=?;`, email)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("couldn't count codes: %w", err)
	}
	return count > 0, nil
}

func (s *Store) insertToken(email string) (string, error) {
	token := uuid.NewString()
	result, err := s.db.Exec(`
		INSERT INTO token (token, account_id)
		SELECT ?, a.id
		FROM account a
		WHERE a.email=?;`,
		token,
		email,
	)
	if err != nil {
		return "", fmt.Errorf("couldn't insert token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return "", fmt.Errorf("no account for %s", email)
	}
	return token, nil
}

func (s *Store) deleteToken(token string) (bool, error) {
	result, err := s.db.Exec(`
		DELETE FROM token
		WHERE token=?;`,
		token,
	)
	if err != nil {
		return false, fmt.Errorf("couldn't delete token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
