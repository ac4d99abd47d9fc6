package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id             TEXT PRIMARY KEY,
		code           TEXT NOT NULL UNIQUE,
		name_en        TEXT NOT NULL,
		name_ar        TEXT NOT NULL,
		description_en TEXT NOT NULL DEFAULT '',
		description_ar TEXT NOT NULL DEFAULT '',
		category       TEXT NOT NULL DEFAULT '',
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		display_order  INTEGER NOT NULL DEFAULT 0,
		features       JSONB NOT NULL DEFAULT '[]',
		quotas         JSONB NOT NULL DEFAULT '[]',
		plans          JSONB NOT NULL DEFAULT '[]',
		version        BIGINT NOT NULL DEFAULT 1,
		created_at     TIMESTAMPTZ NOT NULL,
		created_by     TEXT NOT NULL DEFAULT '',
		updated_at     TIMESTAMPTZ,
		updated_by     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS tenant_subscriptions (
		id                  TEXT PRIMARY KEY,
		tenant_id           TEXT NOT NULL,
		product_id          TEXT NOT NULL REFERENCES products(id),
		pricing_plan_id     TEXT,
		status              TEXT NOT NULL,
		start_date          TIMESTAMPTZ NOT NULL,
		end_date            TIMESTAMPTZ,
		trial_end_date      TIMESTAMPTZ,
		auto_renew          BOOLEAN NOT NULL DEFAULT FALSE,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		cancelled_at        TIMESTAMPTZ,
		version             BIGINT NOT NULL DEFAULT 1,
		created_at          TIMESTAMPTZ NOT NULL,
		created_by          TEXT NOT NULL DEFAULT '',
		updated_at          TIMESTAMPTZ,
		updated_by          TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_tenant_subscriptions_active
		ON tenant_subscriptions (tenant_id)
		WHERE status IN ('Trial', 'Active')`,
	`CREATE INDEX IF NOT EXISTS ix_tenant_subscriptions_tenant ON tenant_subscriptions (tenant_id, start_date DESC)`,
	`CREATE TABLE IF NOT EXISTS quota_usages (
		tenant_id     TEXT NOT NULL,
		quota_type    TEXT NOT NULL,
		current_usage DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (current_usage >= 0),
		last_updated  TIMESTAMPTZ NOT NULL,
		reset_date    TIMESTAMPTZ,
		PRIMARY KEY (tenant_id, quota_type)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_quota_usages_reset ON quota_usages (reset_date) WHERE reset_date IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS risks (
		id                   TEXT PRIMARY KEY,
		tenant_id            TEXT NOT NULL,
		code                 TEXT NOT NULL,
		title_en             TEXT NOT NULL,
		title_ar             TEXT NOT NULL,
		description_en       TEXT NOT NULL DEFAULT '',
		description_ar       TEXT NOT NULL DEFAULT '',
		category             TEXT NOT NULL DEFAULT '',
		owner_user_id        TEXT,
		status               TEXT NOT NULL,
		inherent_probability INTEGER NOT NULL DEFAULT 0,
		inherent_impact      INTEGER NOT NULL DEFAULT 0,
		inherent_level       TEXT,
		residual_probability INTEGER,
		residual_impact      INTEGER,
		residual_level       TEXT,
		treatment            TEXT,
		last_assessed_at     TIMESTAMPTZ,
		version              BIGINT NOT NULL DEFAULT 1,
		created_at           TIMESTAMPTZ NOT NULL,
		created_by           TEXT NOT NULL DEFAULT '',
		updated_at           TIMESTAMPTZ,
		updated_by           TEXT NOT NULL DEFAULT '',
		UNIQUE (tenant_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_tasks (
		id                   TEXT PRIMARY KEY,
		tenant_id            TEXT NOT NULL,
		entity_type          TEXT NOT NULL,
		entity_id            TEXT NOT NULL,
		title_en             TEXT NOT NULL,
		title_ar             TEXT NOT NULL DEFAULT '',
		assigned_to_user_id  TEXT,
		status               TEXT NOT NULL,
		due_date             TIMESTAMPTZ,
		completed_by_user_id TEXT,
		completed_at         TIMESTAMPTZ,
		comments             TEXT NOT NULL DEFAULT '',
		metadata             JSONB,
		version              BIGINT NOT NULL DEFAULT 1,
		created_at           TIMESTAMPTZ NOT NULL,
		created_by           TEXT NOT NULL DEFAULT '',
		updated_at           TIMESTAMPTZ,
		updated_by           TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS ix_workflow_tasks_entity ON workflow_tasks (tenant_id, entity_type, entity_id)`,
	`CREATE INDEX IF NOT EXISTS ix_workflow_tasks_assignee ON workflow_tasks (tenant_id, assigned_to_user_id) WHERE status IN ('Pending', 'InProgress')`,
}
