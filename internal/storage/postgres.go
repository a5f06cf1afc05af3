package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// allowedTables whitelists every table the engine may touch. Statements are
// built only from these names and parameterized values, never from caller
// strings.
var allowedTables = map[string]struct{}{
	TableProfiles:      {},
	TableCredentials:   {},
	TableSessions:      {},
	TableAuditLogs:     {},
	TableLoginAttempts: {},
}

// Postgres implements [Remote] on a pgx connection pool. Every call carries
// its own timeout; auth-path calls must stay interactive, so the default is
// deliberately short.
type Postgres struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgres wraps pool as a [Remote]. A non-positive timeout defaults to
// 8 seconds.
func NewPostgres(pool *pgxpool.Pool, timeout time.Duration) *Postgres {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Postgres{pool: pool, timeout: timeout}
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return nil
}

func (p *Postgres) Query(ctx context.Context, table string, filter Filter) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	sql, args := buildWhere("SELECT * FROM "+table, filter)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return out, nil
}

func (p *Postgres) Count(ctx context.Context, table string, filter Filter) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	sql, args := buildWhere("SELECT COUNT(*) FROM "+table, filter)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var count int
	if err := p.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return count, nil
}

func (p *Postgres) Insert(ctx context.Context, table string, row Row) error {
	if err := checkTable(table); err != nil {
		return err
	}
	cols := FilterKeys(Filter(row))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, table string, filter Filter, patch Row) error {
	if err := checkTable(table); err != nil {
		return err
	}
	cols := FilterKeys(Filter(patch))
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filter))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, patch[col])
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	sql, args = appendWhere(sql, args, filter)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, table string, filter Filter) error {
	if err := checkTable(table); err != nil {
		return err
	}
	sql, args := buildWhere("DELETE FROM "+table, filter)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return nil
}

func checkTable(table string) error {
	if _, ok := allowedTables[table]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return nil
}

func buildWhere(sql string, filter Filter) (string, []any) {
	return appendWhere(sql, nil, filter)
}

func appendWhere(sql string, args []any, filter Filter) (string, []any) {
	if len(filter) == 0 {
		return sql, args
	}
	conds := make([]string, 0, len(filter))
	for _, col := range FilterKeys(filter) {
		args = append(args, filter[col])
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	return sql + " WHERE " + strings.Join(conds, " AND "), args
}

var _ Remote = (*Postgres)(nil)
var _ Remote = (*MemoryRemote)(nil)
var _ Remote = Unavailable{}
var _ Cache = (*RedisCache)(nil)
var _ Cache = (*MemoryCache)(nil)
