package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	return strings.Contains(errStr, "duplicate key value violates unique constraint")
}

// isForeignKeyViolation checks if an error is a FOREIGN KEY violation.
func isForeignKeyViolation(err error) bool {
	errStr := err.Error()
	if strings.Contains(errStr, "FOREIGN KEY constraint failed") {
		return true
	}
	return strings.Contains(errStr, "violates foreign key constraint")
}

// wrapError converts constraint violations to domain errors: UNIQUE to
// domain.ErrAlreadyExists and FOREIGN KEY to domain.ErrNotFound.
func wrapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return err
}

// dialect maps a database/sql driver name to its goose dialect and the
// migration directory written for it.
func dialect(driver string) (goose.Dialect, string, error) {
	switch driver {
	case "postgres":
		return goose.DialectPostgres, "migrations/postgres", nil
	case "sqlite3", "sqlite":
		return goose.DialectSQLite3, "migrations/sqlite", nil
	}
	return "", "", fmt.Errorf("unsupported database driver %q", driver)
}

func isSQLite(driver string) bool {
	return driver == "sqlite3" || driver == "sqlite"
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New opens a SQL store and applies pending migrations.
func New(ctx context.Context, driver, dsn string) (*Store, error) {
	s, err := Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Open connects to the database without touching its schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if _, _, err := dialect(driver); err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if isSQLite(driver) {
		// One connection keeps ":memory:" databases shared and serializes
		// writers; foreign keys are per connection in SQLite.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}

	return &Store{db: db, driver: driver}, nil
}

func (s *Store) provider() (*goose.Provider, error) {
	d, dir, err := dialect(s.driver)
	if err != nil {
		return nil, err
	}
	fsys, err := fs.Sub(embedMigrations, dir)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(d, s.db.DB, fsys)
}

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context) ([]*goose.MigrationResult, error) {
	p, err := s.provider()
	if err != nil {
		return nil, fmt.Errorf("creating migration provider: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return results, nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown(ctx context.Context) (*goose.MigrationResult, error) {
	p, err := s.provider()
	if err != nil {
		return nil, fmt.Errorf("creating migration provider: %w", err)
	}
	result, err := p.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("rolling back migration: %w", err)
	}
	return result, nil
}

// MigrationStatus reports every known migration and whether it is applied.
func (s *Store) MigrationStatus(ctx context.Context) ([]*goose.MigrationStatus, error) {
	p, err := s.provider()
	if err != nil {
		return nil, fmt.Errorf("creating migration provider: %w", err)
	}
	return p.Status(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close is a no-op for transactions (they should be committed or rolled back).
func (t *Tx) Close() error {
	return nil
}

// BeginTx is not supported within a transaction.
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// Queries are written with ? placeholders and rebound for the driver.

func get(ctx context.Context, db dbInterface, dest any, query string, args ...any) error {
	return db.GetContext(ctx, dest, db.Rebind(query), args...)
}

func list(ctx context.Context, db dbInterface, dest any, query string, args ...any) error {
	return db.SelectContext(ctx, dest, db.Rebind(query), args...)
}

func exec(ctx context.Context, db dbInterface, query string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, db.Rebind(query), args...)
}

func insertReturningID(ctx context.Context, db dbInterface, query string, args ...any) (int64, error) {
	var id int64
	if err := db.QueryRowxContext(ctx, db.Rebind(query), args...).Scan(&id); err != nil {
		return 0, wrapError(err)
	}
	return id, nil
}

// affected turns a write that touched no row into domain.ErrNotFound.
func affected(res sql.Result, err error) error {
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// Firewalls
// ============================================

const firewallColumns = `id, name, ip_address, port`

func createFirewall(ctx context.Context, db dbInterface, fw *domain.Firewall) error {
	id, err := insertReturningID(ctx, db,
		`INSERT INTO firewalls (name, ip_address, port) VALUES (?, ?, ?) RETURNING id`,
		fw.Name, fw.IPAddress, fw.Port)
	if err != nil {
		return err
	}
	fw.ID = id
	return nil
}

func (s *Store) CreateFirewall(ctx context.Context, fw *domain.Firewall) error {
	return createFirewall(ctx, s.db, fw)
}

func (t *Tx) CreateFirewall(ctx context.Context, fw *domain.Firewall) error {
	return createFirewall(ctx, t.tx, fw)
}

func getFirewall(ctx context.Context, db dbInterface, id int64) (*domain.Firewall, error) {
	var fw domain.Firewall
	err := get(ctx, db, &fw, `SELECT `+firewallColumns+` FROM firewalls WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &fw, nil
}

func (s *Store) GetFirewall(ctx context.Context, id int64) (*domain.Firewall, error) {
	return getFirewall(ctx, s.db, id)
}

func (t *Tx) GetFirewall(ctx context.Context, id int64) (*domain.Firewall, error) {
	return getFirewall(ctx, t.tx, id)
}

func getFirewallByAddress(ctx context.Context, db dbInterface, ipAddress string, port int) (*domain.Firewall, error) {
	var fw domain.Firewall
	err := get(ctx, db, &fw,
		`SELECT `+firewallColumns+` FROM firewalls WHERE ip_address = ? AND port = ?`,
		ipAddress, port)
	if err != nil {
		return nil, wrapError(err)
	}
	return &fw, nil
}

func (s *Store) GetFirewallByAddress(ctx context.Context, ipAddress string, port int) (*domain.Firewall, error) {
	return getFirewallByAddress(ctx, s.db, ipAddress, port)
}

func (t *Tx) GetFirewallByAddress(ctx context.Context, ipAddress string, port int) (*domain.Firewall, error) {
	return getFirewallByAddress(ctx, t.tx, ipAddress, port)
}

func listFirewalls(ctx context.Context, db dbInterface) ([]*domain.Firewall, error) {
	fws := []*domain.Firewall{}
	if err := list(ctx, db, &fws, `SELECT `+firewallColumns+` FROM firewalls ORDER BY id`); err != nil {
		return nil, err
	}
	return fws, nil
}

func (s *Store) ListFirewalls(ctx context.Context) ([]*domain.Firewall, error) {
	return listFirewalls(ctx, s.db)
}

func (t *Tx) ListFirewalls(ctx context.Context) ([]*domain.Firewall, error) {
	return listFirewalls(ctx, t.tx)
}

func deleteFirewall(ctx context.Context, db dbInterface, id int64) error {
	return affected(exec(ctx, db, `DELETE FROM firewalls WHERE id = ?`, id))
}

func (s *Store) DeleteFirewall(ctx context.Context, id int64) error {
	return deleteFirewall(ctx, s.db, id)
}

func (t *Tx) DeleteFirewall(ctx context.Context, id int64) error {
	return deleteFirewall(ctx, t.tx, id)
}

// ============================================
// Filtering Policies
// ============================================

const policyColumns = `id, firewall_id, name, next_policy_id`

func createFilteringPolicy(ctx context.Context, db dbInterface, p *domain.FilteringPolicy) error {
	id, err := insertReturningID(ctx, db,
		`INSERT INTO filtering_policies (firewall_id, name, next_policy_id) VALUES (?, ?, ?) RETURNING id`,
		p.FirewallID, p.Name, p.NextPolicyID)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *Store) CreateFilteringPolicy(ctx context.Context, p *domain.FilteringPolicy) error {
	return createFilteringPolicy(ctx, s.db, p)
}

func (t *Tx) CreateFilteringPolicy(ctx context.Context, p *domain.FilteringPolicy) error {
	return createFilteringPolicy(ctx, t.tx, p)
}

func getFilteringPolicy(ctx context.Context, db dbInterface, id int64) (*domain.FilteringPolicy, error) {
	var p domain.FilteringPolicy
	err := get(ctx, db, &p, `SELECT `+policyColumns+` FROM filtering_policies WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &p, nil
}

func (s *Store) GetFilteringPolicy(ctx context.Context, id int64) (*domain.FilteringPolicy, error) {
	return getFilteringPolicy(ctx, s.db, id)
}

func (t *Tx) GetFilteringPolicy(ctx context.Context, id int64) (*domain.FilteringPolicy, error) {
	return getFilteringPolicy(ctx, t.tx, id)
}

func listFilteringPolicies(ctx context.Context, db dbInterface, firewallID int64) ([]*domain.FilteringPolicy, error) {
	ps := []*domain.FilteringPolicy{}
	err := list(ctx, db, &ps,
		`SELECT `+policyColumns+` FROM filtering_policies WHERE firewall_id = ? ORDER BY id`, firewallID)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func (s *Store) ListFilteringPolicies(ctx context.Context, firewallID int64) ([]*domain.FilteringPolicy, error) {
	return listFilteringPolicies(ctx, s.db, firewallID)
}

func (t *Tx) ListFilteringPolicies(ctx context.Context, firewallID int64) ([]*domain.FilteringPolicy, error) {
	return listFilteringPolicies(ctx, t.tx, firewallID)
}

func setNextFilteringPolicy(ctx context.Context, db dbInterface, id int64, next *int64) error {
	return affected(exec(ctx, db,
		`UPDATE filtering_policies SET next_policy_id = ? WHERE id = ?`, next, id))
}

func (s *Store) SetNextFilteringPolicy(ctx context.Context, id int64, next *int64) error {
	return setNextFilteringPolicy(ctx, s.db, id, next)
}

func (t *Tx) SetNextFilteringPolicy(ctx context.Context, id int64, next *int64) error {
	return setNextFilteringPolicy(ctx, t.tx, id, next)
}

func deleteFilteringPolicy(ctx context.Context, db dbInterface, id int64) error {
	return affected(exec(ctx, db, `DELETE FROM filtering_policies WHERE id = ?`, id))
}

func (s *Store) DeleteFilteringPolicy(ctx context.Context, id int64) error {
	return deleteFilteringPolicy(ctx, s.db, id)
}

func (t *Tx) DeleteFilteringPolicy(ctx context.Context, id int64) error {
	return deleteFilteringPolicy(ctx, t.tx, id)
}

// ============================================
// Rules
// ============================================

const ruleColumns = `id, filtering_policy_id, name, source_ip, destination_ip, destination_port, protocol, action, next_rule_id`

func createRule(ctx context.Context, db dbInterface, r *domain.Rule) error {
	id, err := insertReturningID(ctx, db,
		`INSERT INTO rules (filtering_policy_id, name, source_ip, destination_ip, destination_port, protocol, action, next_rule_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		r.FilteringPolicyID, r.Name, r.SourceIP, r.DestinationIP, r.DestinationPort,
		string(r.Protocol), string(r.Action), r.NextRuleID)
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (s *Store) CreateRule(ctx context.Context, r *domain.Rule) error {
	return createRule(ctx, s.db, r)
}

func (t *Tx) CreateRule(ctx context.Context, r *domain.Rule) error {
	return createRule(ctx, t.tx, r)
}

func getRule(ctx context.Context, db dbInterface, id int64) (*domain.Rule, error) {
	var r domain.Rule
	if err := get(ctx, db, &r, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &r, nil
}

func (s *Store) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	return getRule(ctx, s.db, id)
}

func (t *Tx) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	return getRule(ctx, t.tx, id)
}

func listRules(ctx context.Context, db dbInterface, policyID int64) ([]*domain.Rule, error) {
	rs := []*domain.Rule{}
	err := list(ctx, db, &rs,
		`SELECT `+ruleColumns+` FROM rules WHERE filtering_policy_id = ? ORDER BY id`, policyID)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *Store) ListRules(ctx context.Context, policyID int64) ([]*domain.Rule, error) {
	return listRules(ctx, s.db, policyID)
}

func (t *Tx) ListRules(ctx context.Context, policyID int64) ([]*domain.Rule, error) {
	return listRules(ctx, t.tx, policyID)
}

func setNextRule(ctx context.Context, db dbInterface, id int64, next *int64) error {
	return affected(exec(ctx, db, `UPDATE rules SET next_rule_id = ? WHERE id = ?`, next, id))
}

func (s *Store) SetNextRule(ctx context.Context, id int64, next *int64) error {
	return setNextRule(ctx, s.db, id, next)
}

func (t *Tx) SetNextRule(ctx context.Context, id int64, next *int64) error {
	return setNextRule(ctx, t.tx, id, next)
}

func deleteRule(ctx context.Context, db dbInterface, id int64) error {
	return affected(exec(ctx, db, `DELETE FROM rules WHERE id = ?`, id))
}

func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	return deleteRule(ctx, s.db, id)
}

func (t *Tx) DeleteRule(ctx context.Context, id int64) error {
	return deleteRule(ctx, t.tx, id)
}

// ============================================
// API Keys
// ============================================

const apiKeyColumns = `id, name, key_hash, key_prefix, created_at, last_used_at`

func createAPIKey(ctx context.Context, db dbInterface, key *domain.APIKey) error {
	_, err := exec(ctx, db,
		`INSERT INTO api_keys (`+apiKeyColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.LastUsedAt)
	return wrapError(err)
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, s.db, key)
}

func (t *Tx) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, t.tx, key)
}

func getAPIKeyByHash(ctx context.Context, db dbInterface, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	if err := get(ctx, db, &key, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = ?`, keyHash); err != nil {
		return nil, wrapError(err)
	}
	return &key, nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, s.db, keyHash)
}

func (t *Tx) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, t.tx, keyHash)
}

func listAPIKeys(ctx context.Context, db dbInterface) ([]*domain.APIKey, error) {
	keys := []*domain.APIKey{}
	if err := list(ctx, db, &keys, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC, id`); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, s.db)
}

func (t *Tx) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, t.tx)
}

func deleteAPIKey(ctx context.Context, db dbInterface, id string) error {
	return affected(exec(ctx, db, `DELETE FROM api_keys WHERE id = ?`, id))
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, s.db, id)
}

func (t *Tx) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, t.tx, id)
}

func updateAPIKeyLastUsed(ctx context.Context, db dbInterface, id string, at time.Time) error {
	return affected(exec(ctx, db, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at, id))
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	return updateAPIKeyLastUsed(ctx, s.db, id, at)
}

func (t *Tx) UpdateAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	return updateAPIKeyLastUsed(ctx, t.tx, id, at)
}

func countAPIKeys(ctx context.Context, db dbInterface) (int, error) {
	var count int
	if err := get(ctx, db, &count, `SELECT COUNT(*) FROM api_keys`); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, s.db)
}

func (t *Tx) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, t.tx)
}
