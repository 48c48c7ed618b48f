package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Folio store (PostgreSQL).
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
    current_period_end       TIMESTAMPTZ,
    canceled_at              TIMESTAMPTZ,
    invoices_this_month      BIGINT NOT NULL DEFAULT 0,
    quotes_this_month        BIGINT NOT NULL DEFAULT 0,
    expenses_this_month      BIGINT NOT NULL DEFAULT 0,
    clients_count            BIGINT NOT NULL DEFAULT 0,
    last_reset_date          TIMESTAMPTZ NOT NULL,
    created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT folio_users_counters_non_negative CHECK (
        invoices_this_month >= 0 AND quotes_this_month >= 0 AND
        expenses_this_month >= 0 AND clients_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_folio_users_email ON folio_users (email);
CREATE INDEX IF NOT EXISTS idx_folio_users_provider_customer ON folio_users (provider_customer_id)
    WHERE provider_customer_id <> '';
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
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
    issue_date    TIMESTAMPTZ NOT NULL,
    due_date      TIMESTAMPTZ,
    currency      TEXT NOT NULL DEFAULT 'eur',
    lines         JSONB NOT NULL DEFAULT '[]',
    subtotal      BIGINT NOT NULL DEFAULT 0,
    tax_total     BIGINT NOT NULL DEFAULT 0,
    total         BIGINT NOT NULL DEFAULT 0,
    notes         TEXT NOT NULL DEFAULT '',
    finalized_at  TIMESTAMPTZ,
    sent_at       TIMESTAMPTZ,
    closed_at     TIMESTAMPTZ,
    metadata      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_folio_documents_number ON folio_documents (user_id, document_type, number);
CREATE INDEX IF NOT EXISTS idx_folio_documents_user_created ON folio_documents (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_folio_documents_due ON folio_documents (document_type, status, due_date)
    WHERE due_date IS NOT NULL;
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
    changes       JSONB NOT NULL DEFAULT '[]',
    performed_by  TEXT NOT NULL DEFAULT '',
    performed_at  TIMESTAMPTZ NOT NULL,
    ip_address    TEXT NOT NULL DEFAULT '',
    user_agent    TEXT NOT NULL DEFAULT '',
    metadata      JSONB NOT NULL DEFAULT '{}'
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
