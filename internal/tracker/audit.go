package tracker

import (
	"database/sql"

	"github.com/google/uuid"
)

// PostgresAudit is the optional best-effort audit sink: every handled
// tracker request is logged to swarm_events if a database is configured.
// Modelled on the teacher's logAnnounceAttempt, whose own comment states
// the governing rule this type follows: tracker behavior must not fail
// because a telemetry write failed.
type PostgresAudit struct {
	db *sql.DB
}

// NewPostgresAudit wraps db for use as an AuditSink.
func NewPostgresAudit(db *sql.DB) *PostgresAudit {
	return &PostgresAudit{db: db}
}

// auditSchema is the embedded migration SQL for the audit table, following
// the teacher's embedded-migration-map convention (cmd/omnicloud's
// embeddedMigrationSQL) at a scale proportionate to this one table.
const auditSchema = `
CREATE TABLE IF NOT EXISTS swarm_events (
    id BIGSERIAL PRIMARY KEY,
    trace_id UUID NOT NULL,
    command VARCHAR(32) NOT NULL,
    file_name VARCHAR(512),
    peer_addr VARCHAR(64),
    status VARCHAR(16) NOT NULL,
    detail TEXT,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_swarm_events_file_name ON swarm_events(file_name);
CREATE INDEX IF NOT EXISTS idx_swarm_events_created_at ON swarm_events(created_at);
`

// EnsureSchema creates the audit table if it does not already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(auditSchema)
	return err
}

// Record writes one best-effort audit row in the background and returns
// at once. Errors are swallowed: a slow or failed telemetry write never
// delays or affects the protocol response.
func (a *PostgresAudit) Record(command, fileName, peerAddr, status, detail string) {
	if a == nil || a.db == nil {
		return
	}
	const query = `
		INSERT INTO swarm_events
		    (trace_id, command, file_name, peer_addr, status, detail, created_at)
		VALUES
		    ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), NOW())
	`
	traceID := uuid.New().String()
	go func() {
		_, _ = a.db.Exec(query, traceID, command, fileName, peerAddr, status, detail)
	}()
}
