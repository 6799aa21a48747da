package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TransactionError reports misuse of the session transaction protocol:
// commit without a transaction, reuse of a closed session, and so on.
type TransactionError struct{ Msg string }

func (e *TransactionError) Error() string { return "transaction: " + e.Msg }

// querier is the subset of database/sql both *sql.Tx and *sql.Conn satisfy;
// graph primitives run against whichever is active.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is a single-caller handle on the store. It owns at most one open
// transaction; nested scopes map to savepoints. Sessions are not safe for
// concurrent use — open one per caller.
type Session struct {
	eng        *Engine
	conn       *sql.Conn
	tx         *sql.Tx
	depth      int // savepoint nesting depth inside tx
	savepoints []string
	closed     bool

	cancel context.CancelFunc
	ctx    context.Context
}

// Session opens a new session. Callers must Close it.
func (e *Engine) Session() *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{eng: e, ctx: ctx, cancel: cancel}
}

// Context is the session's lifetime context; it is cancelled by Close and
// checked at clause boundaries during query execution.
func (s *Session) Context() context.Context { return s.ctx }

// Close aborts any running query, rolls back an open transaction and
// releases the connection.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	var err error
	if s.tx != nil {
		err = s.tx.Rollback()
		s.tx = nil
		s.depth = 0
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
		s.conn = nil
	}
	return err
}

func (s *Session) check() error {
	if s.closed {
		return &TransactionError{Msg: "session closed"}
	}
	if s.eng.isClosed() {
		return ErrClosed
	}
	return nil
}

// q returns the active transaction, the session's own connection when one
// has been acquired, or the pooled database for implicit auto-commit
// statements. Reads on the held connection observe the session's writes.
func (s *Session) q() querier {
	if s.tx != nil {
		return s.tx
	}
	if s.conn != nil {
		return s.conn
	}
	return s.eng.db
}

// InTransaction reports whether an explicit transaction is open.
func (s *Session) InTransaction() bool { return s.tx != nil }

// Begin opens a transaction. Inside an open transaction it opens a
// savepoint instead, so Begin/Commit pairs nest.
func (s *Session) Begin(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.tx != nil {
		return s.pushSavepoint(ctx)
	}
	if s.conn == nil {
		conn, err := s.eng.db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("acquire connection: %w", err)
		}
		s.conn = conn
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit commits the innermost scope: releases the savepoint when nested,
// commits the transaction at depth zero.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.tx == nil {
		return &TransactionError{Msg: "commit outside a transaction"}
	}
	if s.depth > 0 {
		return s.releaseSavepoint(ctx)
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback rolls back the innermost scope.
func (s *Session) Rollback(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.tx == nil {
		return &TransactionError{Msg: "rollback outside a transaction"}
	}
	if s.depth > 0 {
		return s.rollbackSavepoint(ctx)
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// WithTransaction runs fn in a scope: commit on nil return, rollback on
// error (the error propagates). Nested calls use savepoints, so an inner
// failure rolls back to its savepoint without touching the outer work.
func (s *Session) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.Begin(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if rbErr := s.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return s.Commit(ctx)
}

func savepointName() string {
	return "sp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Savepoint bookkeeping. SQLite releases and rolls back savepoints by name;
// each level gets a generated name kept on a stack so the innermost scope
// always addresses its own savepoint.
func (s *Session) pushSavepoint(ctx context.Context) error {
	name := savepointName()
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	s.depth++
	s.savepoints = append(s.savepoints, name)
	return nil
}

func (s *Session) releaseSavepoint(ctx context.Context) error {
	name := s.savepoints[len(s.savepoints)-1]
	s.savepoints = s.savepoints[:len(s.savepoints)-1]
	s.depth--
	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (s *Session) rollbackSavepoint(ctx context.Context) error {
	name := s.savepoints[len(s.savepoints)-1]
	s.savepoints = s.savepoints[:len(s.savepoints)-1]
	s.depth--
	// ROLLBACK TO leaves the savepoint on the stack; RELEASE discards it.
	if _, err := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("rollback to savepoint: %w", err)
	}
	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// Registry returns the engine's property-index and constraint registry.
func (s *Session) Registry() *Registry { return s.eng.registry }
