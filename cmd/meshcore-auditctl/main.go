// meshcore-auditctl is a read-only inspection tool for the relay audit
// log (A5): list recent relay decisions, show stats snapshots, or run
// an ad-hoc SELECT against the SQLite file a meshcore node writes to.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var (
	dbPath string
	limit  int

	rootCmd = &cobra.Command{
		Use:   "meshcore-auditctl",
		Short: "Inspect a meshcore relay audit log",
	}

	decisionsCmd = &cobra.Command{
		Use:   "decisions",
		Short: "Show recent relay decisions",
		RunE:  showDecisions,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show recent stats snapshots",
		RunE:  showStats,
	}

	queryCmd = &cobra.Command{
		Use:   "query [sql]",
		Short: "Execute a raw SELECT query",
		Args:  cobra.ExactArgs(1),
		RunE:  executeQuery,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "/var/lib/meshcore/audit.db", "Audit database file path")
	decisionsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of rows to show")
	statsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of rows to show")

	rootCmd.AddCommand(decisionsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB() (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath+"?mode=ro")
}

func showDecisions(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT packet_id, source, destination, port, decision, detail, recorded_at
		FROM audit_log ORDER BY recorded_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PACKET\tSOURCE\tDEST\tPORT\tDECISION\tDETAIL\tTIME")
	fmt.Fprintln(w, "------\t------\t----\t----\t--------\t------\t----")

	for rows.Next() {
		var packetID, source, dest uint32
		var port uint8
		var decision string
		var detail sql.NullString
		var recordedAt time.Time

		if err := rows.Scan(&packetID, &source, &dest, &port, &decision, &detail, &recordedAt); err != nil {
			return err
		}

		fmt.Fprintf(w, "%#08x\t%#08x\t%#08x\t%d\t%s\t%s\t%s\n",
			packetID, source, dest, port, decision, detail.String,
			recordedAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
	return rows.Err()
}

func showStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT recorded_at, packets_received, packets_transmitted, packets_dropped,
			channel_busy_events, duty_cycle_blocks, current_duty_cycle_percent
		FROM stats_snapshots ORDER BY recorded_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRX\tTX\tDROPPED\tBUSY\tDUTY BLOCKS\tDUTY %")
	fmt.Fprintln(w, "----\t--\t--\t-------\t----\t-----------\t------")

	for rows.Next() {
		var recordedAt time.Time
		var received, transmitted, dropped, busyEvents, dutyBlocks int64
		var dutyPercent float64

		if err := rows.Scan(&recordedAt, &received, &transmitted, &dropped, &busyEvents, &dutyBlocks, &dutyPercent); err != nil {
			return err
		}

		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%.2f%%\n",
			recordedAt.Format("2006-01-02 15:04:05"), received, transmitted,
			dropped, busyEvents, dutyBlocks, dutyPercent)
	}
	w.Flush()
	return rows.Err()
}

func executeQuery(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	query := args[0]
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return fmt.Errorf("only SELECT queries are allowed")
	}

	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	fmt.Fprintln(w, strings.Repeat("-\t", len(cols)))

	values := make([]interface{}, len(cols))
	valuePtrs := make([]interface{}, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return err
		}

		row := make([]string, len(cols))
		for i, v := range values {
			switch val := v.(type) {
			case nil:
				row[i] = "NULL"
			case []byte:
				row[i] = string(val)
			default:
				row[i] = fmt.Sprintf("%v", val)
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
	return rows.Err()
}
