package store

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dev.c0redev.chalresp/internal/crypto"
)

// DB wraps sqlite (reference server: user keys + attempt journal).
type DB struct {
	*sql.DB
}

// Open opens db at path, runs migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// one conn: ":memory:" is per-connection, and sqlite serializes writers anyway
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			login TEXT NOT NULL UNIQUE,
			key_hex TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			login TEXT NOT NULL,
			op TEXT NOT NULL,
			left_operand INTEGER NOT NULL,
			right_operand INTEGER NOT NULL,
			expected TEXT NOT NULL,
			verdict TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_attempts_login ON attempts(login);
	`)
	return err
}

// User: login + pre-shared key.
type User struct {
	ID        int64
	Login     string
	Key       crypto.Key
	CreatedAt time.Time
}

// CreateUser inserts user; err if login exists.
func (db *DB) CreateUser(login string, key crypto.Key) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := db.Exec("INSERT INTO users (login, key_hex, created_at) VALUES (?, ?, ?)", login, hex.EncodeToString(key[:]), now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetKey replaces the user's key.
func (db *DB) SetKey(login string, key crypto.Key) error {
	res, err := db.Exec("UPDATE users SET key_hex = ? WHERE login = ?", hex.EncodeToString(key[:]), login)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %q not found", login)
	}
	return nil
}

// UserByLogin returns user by login or nil.
func (db *DB) UserByLogin(login string) (*User, error) {
	var u User
	var keyHex, t string
	err := db.QueryRow("SELECT id, login, key_hex, created_at FROM users WHERE login = ?", login).Scan(&u.ID, &u.Login, &keyHex, &t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.Key, err = crypto.ParseKeyHex(keyHex); err != nil {
		return nil, fmt.Errorf("user %q: %w", login, err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, t)
	return &u, nil
}

// KeyFor returns the login's key; ok=false if unknown.
func (db *DB) KeyFor(login string) (crypto.Key, bool, error) {
	u, err := db.UserByLogin(login)
	if err != nil || u == nil {
		return crypto.Key{}, false, err
	}
	return u.Key, true, nil
}

// Attempt: one server-side verdict.
type Attempt struct {
	ID        int64
	Login     string
	Op        string
	Left      uint32
	Right     uint32
	Expected  uint64
	Verdict   string
	CreatedAt time.Time
}

// RecordAttempt appends to the journal. Expected stored as text (uint64 exceeds sqlite INTEGER).
func (db *DB) RecordAttempt(a *Attempt) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec("INSERT INTO attempts (login, op, left_operand, right_operand, expected, verdict, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		a.Login, a.Op, int64(a.Left), int64(a.Right), fmt.Sprintf("%d", a.Expected), a.Verdict, now)
	return err
}

// Attempts newest first; limit<=0 = 50.
func (db *DB) Attempts(login string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query("SELECT id, login, op, left_operand, right_operand, expected, verdict, created_at FROM attempts WHERE login = ? ORDER BY id DESC LIMIT ?", login, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		var a Attempt
		var left, right int64
		var expected, t string
		if err := rows.Scan(&a.ID, &a.Login, &a.Op, &left, &right, &expected, &a.Verdict, &t); err != nil {
			return nil, err
		}
		a.Left, a.Right = uint32(left), uint32(right)
		if _, err := fmt.Sscanf(expected, "%d", &a.Expected); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, t)
		out = append(out, a)
	}
	return out, rows.Err()
}
