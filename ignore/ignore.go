// Package ignore maintains a list of users whose messages the bot ignores.
package ignore

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/cases"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrIgnored is an error returned by Check when the user is in the list.
var ErrIgnored = errors.New("user is ignored")

// List is an ignore list backed by an SQL database.
// Nicknames are compared under case folding.
type List struct {
	db *sqlitex.Pool
}

// Open opens an existing ignore list in an SQL database.
func Open(ctx context.Context, db *sqlitex.Pool) (*List, error) {
	return &List{db: db}, nil
}

// Init initializes a list in an SQL database.
// For convenience, it accepts either a single connection or a pool.
func Init[DB *sqlite.Conn | *sqlitex.Pool](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get connection from pool: %w", err)
		}
	}
	err := sqlitex.ExecuteTransient(conn, `CREATE TABLE IF NOT EXISTS ignored (nick TEXT PRIMARY KEY) STRICT, WITHOUT ROWID`, nil)
	if err != nil {
		return fmt.Errorf("couldn't create ignore list: %w", err)
	}
	return nil
}

func fold(nick string) string {
	return cases.Fold().String(nick)
}

// Add adds a user to the list. Adding a user already in the list is not
// an error.
func (l *List) Add(ctx context.Context, nick string) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to add user to ignore list: %w", err)
	}
	opts := sqlitex.ExecOptions{Args: []any{fold(nick)}}
	err = sqlitex.Execute(conn, `INSERT OR IGNORE INTO ignored (nick) VALUES (?)`, &opts)
	return err
}

// Remove removes a user from the list.
func (l *List) Remove(ctx context.Context, nick string) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to remove user from ignore list: %w", err)
	}
	opts := sqlitex.ExecOptions{Args: []any{fold(nick)}}
	err = sqlitex.Execute(conn, `DELETE FROM ignored WHERE nick=?`, &opts)
	return err
}

// Check checks whether a user is in the list.
func (l *List) Check(ctx context.Context, nick string) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to check ignore list: %w", err)
	}
	st, err := conn.Prepare(`SELECT ? IN (SELECT nick FROM ignored)`)
	if err != nil {
		return fmt.Errorf("couldn't prepare statement to check ignore list: %w", err)
	}
	st.BindText(1, fold(nick))
	ok, err := sqlitex.ResultBool(st)
	if err != nil {
		return err
	}
	if ok {
		return ErrIgnored
	}
	return nil
}

// All lists every ignored user in sorted order.
func (l *List) All(ctx context.Context) ([]string, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to list ignored users: %w", err)
	}
	var r []string
	opts := sqlitex.ExecOptions{
		ResultFunc: func(st *sqlite.Stmt) error {
			r = append(r, st.ColumnText(0))
			return nil
		},
	}
	if err := sqlitex.Execute(conn, `SELECT nick FROM ignored ORDER BY nick`, &opts); err != nil {
		return nil, fmt.Errorf("couldn't list ignored users: %w", err)
	}
	return r, nil
}
