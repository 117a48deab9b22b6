package postgresql

import "github.com/dukex/leadflow/pkg/persistence/sqlbase"

func migrations() []sqlbase.Migration {
	return []sqlbase.Migration{
		{Version: 1, Name: "leads and outreach", SQL: `
			CREATE TABLE users (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				email VARCHAR(255) NOT NULL DEFAULT '',
				phone VARCHAR(64) NOT NULL DEFAULT '',
				access_token TEXT NOT NULL DEFAULT '',
				refresh_token TEXT NOT NULL DEFAULT '',
				linkedin_cookie TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE businesses (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL DEFAULT '',
				phone VARCHAR(64) NOT NULL DEFAULT '',
				website TEXT NOT NULL DEFAULT '',
				address TEXT NOT NULL DEFAULT '',
				category VARCHAR(255) NOT NULL DEFAULT '',
				rating DOUBLE PRECISION,
				review_count INT NOT NULL DEFAULT 0,
				linkedin_url TEXT NOT NULL DEFAULT '',
				source VARCHAR(64) NOT NULL DEFAULT '',
				email_sent BOOLEAN NOT NULL DEFAULT FALSE,
				email_sent_at TIMESTAMP WITH TIME ZONE,
				email_status VARCHAR(32) NOT NULL DEFAULT '',
				extra JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (user_id, name, address)
			);

			CREATE INDEX idx_businesses_user_category ON businesses(user_id, category);
			CREATE INDEX idx_businesses_created_at ON businesses(created_at);

			CREATE TABLE email_templates (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				subject TEXT NOT NULL,
				body TEXT NOT NULL
			);

			CREATE TABLE email_logs (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				business_id TEXT NOT NULL,
				template_id TEXT NOT NULL DEFAULT '',
				subject TEXT NOT NULL,
				body TEXT NOT NULL,
				status VARCHAR(32) NOT NULL,
				error_message TEXT NOT NULL DEFAULT '',
				sent_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_email_logs_business ON email_logs(business_id, template_id, status);
			CREATE INDEX idx_email_logs_user_sent_at ON email_logs(user_id, sent_at);
		`},
		{Version: 2, Name: "workflows, executions and triggers", SQL: `
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				target_category VARCHAR(255) NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				graph JSONB NOT NULL,
				last_run_at TIMESTAMP WITH TIME ZONE,
				execution_count INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE execution_logs (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				business_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				status VARCHAR(32) NOT NULL,
				logs JSONB NOT NULL DEFAULT '[]',
				state JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				attempt INT NOT NULL DEFAULT 0,
				resume_from_node_id TEXT NOT NULL DEFAULT '',
				parent_execution_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_execution_logs_workflow_completed ON execution_logs(workflow_id, completed_at DESC);

			CREATE TABLE triggers (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(32) NOT NULL CHECK (trigger_type IN ('schedule', 'new_business', 'delay_completion')),
				config JSONB NOT NULL DEFAULT '{}',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				last_run_at TIMESTAMP WITH TIME ZONE,
				next_run_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_triggers_due ON triggers(is_active, next_run_at);

			CREATE TABLE trigger_executions (
				id TEXT PRIMARY KEY,
				trigger_id TEXT NOT NULL REFERENCES triggers(id) ON DELETE CASCADE,
				workflow_id TEXT NOT NULL,
				business_id TEXT NOT NULL,
				execution_id TEXT NOT NULL DEFAULT '',
				status VARCHAR(32) NOT NULL,
				error_message TEXT NOT NULL DEFAULT '',
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`},
		{Version: 3, Name: "notifications, scraping jobs and lead notes", SQL: `
			CREATE TABLE notifications (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				title VARCHAR(255) NOT NULL,
				message TEXT NOT NULL,
				level VARCHAR(16) NOT NULL,
				category VARCHAR(16) NOT NULL,
				read BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_notifications_user ON notifications(user_id, created_at DESC);

			CREATE TABLE scraping_jobs (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				keywords JSONB NOT NULL,
				location TEXT NOT NULL DEFAULT '',
				status VARCHAR(16) NOT NULL,
				found INT NOT NULL DEFAULT 0,
				iterations INT NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE lead_notes (
				id TEXT PRIMARY KEY DEFAULT md5(random()::text || clock_timestamp()::text),
				user_id TEXT NOT NULL,
				business_id TEXT NOT NULL,
				note TEXT NOT NULL DEFAULT '',
				stage VARCHAR(64) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (user_id, business_id)
			);
		`},
	}
}
