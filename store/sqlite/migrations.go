package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Folio store (SQLite).
// Timestamps are stored as unix seconds.
var Migrations = migrate.NewGroup("folio")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_folio_users",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS folio_users (
    id                       TEXT PRIMARY KEY,
    email                    TEXT NOT NULL,
    name                     TEXT NOT NULL DEFAULT '',
    plan                     TEXT NOT NULL DEFAULT 'free',
    subscription_status      TEXT NOT NULL DEFAULT 'active',
    provider_customer_id     TEXT NOT NULL DEFAULT '',
    provider_subscription_id TEXT NOT NULL DEFAULT '',
    current_period_end       INTEGER,
    canceled_at              INTEGER,
    invoices_this_month      INTEGER NOT NULL DEFAULT 0 CHECK (invoices_this_month >= 0),
    quotes_this_month        INTEGER NOT NULL DEFAULT 0 CHECK (quotes_this_month >= 0),
    expenses_this_month      INTEGER NOT NULL DEFAULT 0 CHECK (expenses_this_month >= 0),
    clients_count            INTEGER NOT NULL DEFAULT 0 CHECK (clients_count >= 0),
    last_reset_date          INTEGER NOT NULL,
    created_at               INTEGER NOT NULL,
    updated_at               INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_folio_users_email ON folio_users (email);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS folio_users`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_folio_sequences",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS folio_sequences (
    user_id       TEXT NOT NULL REFERENCES folio_users (id) ON DELETE CASCADE,
    document_type TEXT NOT NULL,
    prefix        TEXT NOT NULL,
    year          INTEGER NOT NULL DEFAULT 0,
    next_number   INTEGER NOT NULL DEFAULT 1,
    updated_at    INTEGER NOT NULL,
    PRIMARY KEY (user_id, document_type)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS folio_sequences`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_folio_documents",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS folio_documents (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL REFERENCES folio_users (id),
    document_type TEXT NOT NULL,
    number        TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'draft',
    client_id     TEXT NOT NULL DEFAULT '',
    title         TEXT NOT NULL DEFAULT '',
    issue_date    INTEGER NOT NULL,
    due_date      INTEGER,
    currency      TEXT NOT NULL DEFAULT 'eur',
    lines         TEXT NOT NULL DEFAULT '[]',
    subtotal      INTEGER NOT NULL DEFAULT 0,
    tax_total     INTEGER NOT NULL DEFAULT 0,
    total         INTEGER NOT NULL DEFAULT 0,
    notes         TEXT NOT NULL DEFAULT '',
    finalized_at  INTEGER,
    sent_at       INTEGER,
    closed_at     INTEGER,
    metadata      TEXT NOT NULL DEFAULT '{}',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_folio_documents_number ON folio_documents (user_id, document_type, number);
CREATE INDEX IF NOT EXISTS idx_folio_documents_user_created ON folio_documents (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_folio_documents_due ON folio_documents (document_type, status, due_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS folio_documents`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_folio_audit_entries",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS folio_audit_entries (
    id            TEXT PRIMARY KEY,
    document_id   TEXT NOT NULL,
    document_type TEXT NOT NULL DEFAULT '',
    user_id       TEXT NOT NULL,
    action        TEXT NOT NULL,
    changes       TEXT NOT NULL DEFAULT '[]',
    performed_by  TEXT NOT NULL DEFAULT '',
    performed_at  INTEGER NOT NULL,
    ip_address    TEXT NOT NULL DEFAULT '',
    user_agent    TEXT NOT NULL DEFAULT '',
    metadata      TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_folio_audit_document ON folio_audit_entries (document_id, performed_at);
CREATE INDEX IF NOT EXISTS idx_folio_audit_user ON folio_audit_entries (user_id, performed_at);
CREATE INDEX IF NOT EXISTS idx_folio_audit_performed_at ON folio_audit_entries (performed_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS folio_audit_entries`)
				return err
			},
		},
	)
}
