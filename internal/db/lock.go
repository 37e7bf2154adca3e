package db

import (
	"context"
	"database/sql"
	"fmt"
)

// advisoryLockClass namespaces this service's advisory locks inside the
// shared database.
const advisoryLockClass = 0x5260 // "rank"

// TryAcquireScopeLock takes the advisory lock serializing mutating runs
// (sync, merge, backfill, reset) against one scope. Returns false when
// another run already holds it.
//
// Advisory locks are session-scoped, and database/sql hands each
// statement an arbitrary pooled connection, so the lock is taken on a
// dedicated *sql.Conn held open until ReleaseScopeLock runs on the same
// Pool.
func (p *Pool) TryAcquireScopeLock(ctx context.Context, scope Scope) (bool, error) {
	key := scope.lockKey()

	p.lockMu.Lock()
	defer p.lockMu.Unlock()

	if _, held := p.lockConns[key]; held {
		return false, nil
	}
	if p.sqlDB == nil {
		return false, fmt.Errorf("acquire scope lock for %s: database pool is not initialized", scope)
	}

	conn, err := p.sqlDB.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire scope lock for %s: %w", scope, err)
	}

	var acquired bool
	err = conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock($1::int, $2::int)`,
		advisoryLockClass, key,
	).Scan(&acquired)
	if err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("acquire scope lock for %s: %w", scope, err)
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	if p.lockConns == nil {
		p.lockConns = make(map[int32]*sql.Conn)
	}
	p.lockConns[key] = conn
	return true, nil
}

// ReleaseScopeLock releases the advisory lock for one scope and returns
// its connection to the pool.
func (p *Pool) ReleaseScopeLock(ctx context.Context, scope Scope) error {
	key := scope.lockKey()

	p.lockMu.Lock()
	conn := p.lockConns[key]
	delete(p.lockConns, key)
	p.lockMu.Unlock()

	if conn == nil {
		return fmt.Errorf("scope lock for %s was not held", scope)
	}
	defer conn.Close()

	var released bool
	err := conn.QueryRowContext(ctx,
		`SELECT pg_advisory_unlock($1::int, $2::int)`,
		advisoryLockClass, key,
	).Scan(&released)
	if err != nil {
		return fmt.Errorf("release scope lock for %s: %w", scope, err)
	}
	if !released {
		return fmt.Errorf("scope lock for %s was not held", scope)
	}
	return nil
}
