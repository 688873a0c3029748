// Package audit records command invocations in an SQLite database.
package audit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Entry is one recorded command invocation.
type Entry struct {
	Time    time.Time `json:"time"`
	Trace   string    `json:"trace"`
	Sender  string    `json:"sender"`
	Command string    `json:"command"`
	Args    string    `json:"args"`
	// Plugin is the plugin that handled the command.
	// It is empty if the command did not exist.
	Plugin string `json:"plugin,omitempty"`
}

// Record records a command invocation.
func Record[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB, e Entry) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get conn to record command: %w", err)
		}
	}
	const insert = `INSERT INTO audit (time, trace, sender, command, args, plugin) VALUES (:time, :trace, :sender, :command, :args, :plugin)`
	st, err := conn.Prepare(insert)
	if err != nil {
		return fmt.Errorf("couldn't prepare statement to record command: %w", err)
	}
	st.SetInt64(":time", e.Time.UnixNano())
	st.SetText(":trace", e.Trace)
	st.SetText(":sender", e.Sender)
	st.SetText(":command", e.Command)
	st.SetText(":args", e.Args)
	st.SetText(":plugin", e.Plugin)
	if _, err := st.Step(); err != nil {
		return fmt.Errorf("couldn't insert command: %w", err)
	}
	return nil
}

// Recent returns up to n of the most recent entries, newest first.
func Recent[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB, n int) ([]Entry, error) {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return nil, fmt.Errorf("couldn't get conn to read commands: %w", err)
		}
	}
	var r []Entry
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":n": n},
		ResultFunc: func(st *sqlite.Stmt) error {
			r = append(r, Entry{
				Time:    time.Unix(0, st.ColumnInt64(0)),
				Trace:   st.ColumnText(1),
				Sender:  st.ColumnText(2),
				Command: st.ColumnText(3),
				Args:    st.ColumnText(4),
				Plugin:  st.ColumnText(5),
			})
			return nil
		},
	}
	const sel = `SELECT time, trace, sender, command, args, plugin FROM audit ORDER BY time DESC, id DESC LIMIT :n`
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return nil, fmt.Errorf("couldn't read commands: %w", err)
	}
	return r, nil
}

//go:embed schema.sql
var schemaSQL string

// Init initializes an SQLite DB to record commands.
func Init[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get conn to initialize audit log: %w", err)
		}
	}
	err := sqlitex.ExecuteScript(conn, schemaSQL, nil)
	if err != nil {
		return fmt.Errorf("couldn't initialize audit schema: %w", err)
	}
	return nil
}
