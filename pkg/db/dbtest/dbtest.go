package dbtest

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const schema = `
CREATE TABLE providers (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	tier TEXT NOT NULL DEFAULT 'free',
	expires_at DATETIME,
	auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
	started_at DATETIME,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_hidden BOOLEAN NOT NULL DEFAULT FALSE,
	is_locked BOOLEAN NOT NULL DEFAULT FALSE,
	locked_until DATETIME,
	status_reason TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE payment_attempts (
	id INTEGER PRIMARY KEY,
	provider_id INTEGER NOT NULL,
	tier TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	duration_months INTEGER NOT NULL,
	gateway_token TEXT,
	status TEXT NOT NULL,
	paid_at DATETIME,
	expires_at DATETIME,
	raw_gateway_payload TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX uq_payment_attempts_token
	ON payment_attempts (gateway_token) WHERE gateway_token IS NOT NULL;
CREATE UNIQUE INDEX uq_payment_attempts_pending
	ON payment_attempts (provider_id) WHERE status = 'pending';

CREATE TABLE notification_log (
	id INTEGER PRIMARY KEY,
	provider_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	dedup_key TEXT NOT NULL,
	payload TEXT,
	sent_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX uq_notification_dedup
	ON notification_log (provider_id, kind, dedup_key);
`

// Open returns an isolated in-memory database carrying the engine schema.
// The schema mirrors the postgres migrations, including the partial unique
// indexes the ledger and notification log rely on.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test database: %v", err)
	}
	// A single connection keeps every session on the same in-memory store.
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply test schema: %v", err)
		}
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
