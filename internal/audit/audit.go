// Package audit implements the relay audit log (A5): an append-only
// SQLite record of relay-engine decisions and periodic RelayStats
// snapshots, kept for operational diagnosis and distinct from "mesh
// state," which this core never persists.
// Uses the usual WAL-mode open/migrate pattern, simplified to pure
// inserts since audit rows are immutable once written.
package audit

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"

	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
	"github.com/gatlinnewhouse/meshcore/internal/relay"
)

// SnapshotFromStats converts a relay.Stats reading into the persisted
// StatsSnapshot shape, stamping it with recordedAt.
func SnapshotFromStats(s relay.Stats, recordedAt time.Time) StatsSnapshot {
	return StatsSnapshot{
		RecordedAt:              recordedAt,
		PacketsReceived:         s.PacketsReceived,
		PacketsQueued:           s.PacketsQueued,
		PacketsTransmitted:      s.PacketsTransmitted,
		PacketsDropped:          s.PacketsDropped,
		PacketsExpired:          s.PacketsExpired,
		ChannelBusyEvents:       s.ChannelBusyEvents,
		DutyCycleBlocks:         s.DutyCycleBlocks,
		ImplicitAcks:            s.ImplicitAcks,
		LoopPreventionDrops:     s.LoopPreventionDrops,
		Retransmissions:         s.Retransmissions,
		CurrentDutyCyclePercent: s.CurrentDutyCyclePercent,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	packet_id INTEGER NOT NULL,
	source INTEGER NOT NULL,
	destination INTEGER NOT NULL,
	port INTEGER NOT NULL,
	decision TEXT NOT NULL,
	detail TEXT,
	recorded_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS stats_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at DATETIME NOT NULL,
	packets_received INTEGER,
	packets_queued INTEGER,
	packets_transmitted INTEGER,
	packets_dropped INTEGER,
	packets_expired INTEGER,
	channel_busy_events INTEGER,
	duty_cycle_blocks INTEGER,
	implicit_acks INTEGER,
	loop_prevention_drops INTEGER,
	retransmissions INTEGER,
	current_duty_cycle_percent REAL
);
`

// StatsSnapshot is a point-in-time copy of the relay engine's counters
// plus a timestamp — the unit persisted by RecordSnapshot and streamed
// by the stats export components (A6/A7).
type StatsSnapshot struct {
	RecordedAt              time.Time
	PacketsReceived         uint64
	PacketsQueued           uint64
	PacketsTransmitted      uint64
	PacketsDropped          uint64
	PacketsExpired          uint64
	ChannelBusyEvents       uint64
	DutyCycleBlocks         uint64
	ImplicitAcks            uint64
	LoopPreventionDrops     uint64
	Retransmissions         uint64
	CurrentDutyCyclePercent float64
}

// Log is a handle to the SQLite-backed audit log.
type Log struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path in WAL mode and
// applies the schema.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed to migrate schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

// RecordDecision persists one relay-engine admission/implicit-ack
// decision. It implements relay.AuditSink. Failures are logged and
// otherwise ignored — audit persistence must never affect the relay
// engine's control flow (§7).
func (l *Log) RecordDecision(packetID, source, destination uint32, port meshpacket.Port, decision, detail string) {
	_, err := l.db.Exec(
		`INSERT INTO audit_log (id, packet_id, source, destination, port, decision, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), packetID, source, destination, uint8(port), decision, detail, time.Now(),
	)
	if err != nil {
		log.Printf("audit: failed to record decision for packet %d: %v", packetID, err)
	}
}

// RecordSnapshot persists one RelayStats snapshot. Failures are logged
// and otherwise ignored, matching RecordDecision's fire-and-forget
// contract.
func (l *Log) RecordSnapshot(s StatsSnapshot) {
	_, err := l.db.Exec(
		`INSERT INTO stats_snapshots (
			recorded_at, packets_received, packets_queued, packets_transmitted,
			packets_dropped, packets_expired, channel_busy_events, duty_cycle_blocks,
			implicit_acks, loop_prevention_drops, retransmissions, current_duty_cycle_percent
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RecordedAt, s.PacketsReceived, s.PacketsQueued, s.PacketsTransmitted,
		s.PacketsDropped, s.PacketsExpired, s.ChannelBusyEvents, s.DutyCycleBlocks,
		s.ImplicitAcks, s.LoopPreventionDrops, s.Retransmissions, s.CurrentDutyCyclePercent,
	)
	if err != nil {
		log.Printf("audit: failed to record stats snapshot: %v", err)
	}
}

// RecentDecisions returns up to limit of the most recently recorded
// audit rows, newest first — used by operator tooling and tests.
func (l *Log) RecentDecisions(limit int) ([]DecisionRow, error) {
	rows, err := l.db.Query(
		`SELECT id, packet_id, source, destination, port, decision, detail, recorded_at
		 FROM audit_log ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query failed: %w", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var r DecisionRow
		var port uint8
		if err := rows.Scan(&r.ID, &r.PacketID, &r.Source, &r.Destination, &port, &r.Decision, &r.Detail, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan failed: %w", err)
		}
		r.Port = meshpacket.Port(port)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DecisionRow is one persisted audit_log row.
type DecisionRow struct {
	ID          string
	PacketID    uint32
	Source      uint32
	Destination uint32
	Port        meshpacket.Port
	Decision    string
	Detail      string
	RecordedAt  time.Time
}
