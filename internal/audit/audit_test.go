package audit

import (
	"os"
	"testing"
	"time"

	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
)

func openTestLog(t *testing.T) (*Log, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "meshcore-audit-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	log, err := Open(tmpFile.Name())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		log.Close()
		os.Remove(tmpFile.Name())
	}
	return log, cleanup
}

func TestRecordDecisionRoundTrip(t *testing.T) {
	log, cleanup := openTestLog(t)
	defer cleanup()

	log.RecordDecision(42, 0x1000, 0x2000, meshpacket.PortTextMessage, "relayed", "hop-limit decremented")
	log.RecordDecision(43, 0x1000, 0xFF, meshpacket.PortRouting, "dropped", "duty cycle exceeded")

	rows, err := log.RecentDecisions(10)
	if err != nil {
		t.Fatalf("RecentDecisions failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("RecentDecisions returned %d rows, want 2", len(rows))
	}

	// Newest first.
	if rows[0].PacketID != 43 || rows[0].Decision != "dropped" {
		t.Errorf("rows[0] = %+v, want packet 43 decision dropped", rows[0])
	}
	if rows[1].PacketID != 42 || rows[1].Decision != "relayed" {
		t.Errorf("rows[1] = %+v, want packet 42 decision relayed", rows[1])
	}
}

func TestRecentDecisionsRespectsLimit(t *testing.T) {
	log, cleanup := openTestLog(t)
	defer cleanup()

	for i := uint32(0); i < 5; i++ {
		log.RecordDecision(i, 1, 2, meshpacket.PortTextMessage, "relayed", "")
	}

	rows, err := log.RecentDecisions(2)
	if err != nil {
		t.Fatalf("RecentDecisions failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("RecentDecisions(2) returned %d rows, want 2", len(rows))
	}
}

func TestRecordSnapshot(t *testing.T) {
	log, cleanup := openTestLog(t)
	defer cleanup()

	snap := StatsSnapshot{
		RecordedAt:              time.Now(),
		PacketsReceived:         10,
		PacketsTransmitted:      4,
		CurrentDutyCyclePercent: 1.5,
	}
	log.RecordSnapshot(snap)

	var count int
	if err := log.db.QueryRow("SELECT COUNT(*) FROM stats_snapshots").Scan(&count); err != nil {
		t.Fatalf("failed to query stats_snapshots: %v", err)
	}
	if count != 1 {
		t.Fatalf("stats_snapshots row count = %d, want 1", count)
	}
}
