package ledger

type migration struct {
	version     int
	description string
	statements  []string
}

// migrations returns the ledger's schema migrations in ascending version
// order (spec §5 tables: telemetry, forecasts, anomalies, actions,
// receipts, audits).
func migrations() []migration {
	return []migration{
		{
			version:     1,
			description: "create core ledger tables",
			statements: []string{
				`CREATE TABLE IF NOT EXISTS telemetry (
					id         INTEGER PRIMARY KEY AUTOINCREMENT,
					ts         DATETIME NOT NULL,
					site       TEXT NOT NULL,
					rack       TEXT NOT NULL,
					device_id  TEXT NOT NULL DEFAULT '',
					metrics    TEXT NOT NULL DEFAULT '{}'
				)`,
				`CREATE INDEX IF NOT EXISTS idx_telemetry_rack_ts ON telemetry(rack, ts)`,

				`CREATE TABLE IF NOT EXISTS forecasts (
					id         INTEGER PRIMARY KEY AUTOINCREMENT,
					ts         DATETIME NOT NULL,
					rack       TEXT NOT NULL,
					horizon_s  INTEGER NOT NULL,
					temp_pred  TEXT NOT NULL,
					temp_lo    TEXT NOT NULL,
					temp_hi    TEXT NOT NULL,
					power_pred REAL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_forecasts_rack_ts ON forecasts(rack, ts)`,

				`CREATE TABLE IF NOT EXISTS anomalies (
					id         INTEGER PRIMARY KEY AUTOINCREMENT,
					ts         DATETIME NOT NULL,
					rack       TEXT NOT NULL,
					score      REAL NOT NULL,
					threshold  REAL NOT NULL,
					is_alarm   INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX IF NOT EXISTS idx_anomalies_rack_ts ON anomalies(rack, ts)`,

				`CREATE TABLE IF NOT EXISTS actions (
					id              INTEGER PRIMARY KEY AUTOINCREMENT,
					ts              DATETIME NOT NULL,
					device_id       TEXT NOT NULL,
					cmd             TEXT NOT NULL,
					supply_temp_c   REAL NOT NULL,
					fan_rpm         INTEGER NOT NULL,
					mode            TEXT NOT NULL,
					status          TEXT NOT NULL,
					reason          TEXT NOT NULL DEFAULT '',
					model_version   TEXT NOT NULL DEFAULT '',
					safety_summary  TEXT NOT NULL DEFAULT '',
					constraints     TEXT,
					explain         TEXT NOT NULL DEFAULT '{}'
				)`,
				`CREATE INDEX IF NOT EXISTS idx_actions_device_ts ON actions(device_id, ts)`,
				`CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status)`,

				`CREATE TABLE IF NOT EXISTS receipts (
					id          INTEGER PRIMARY KEY AUTOINCREMENT,
					action_id   INTEGER REFERENCES actions(id),
					ts          DATETIME NOT NULL,
					device_id   TEXT NOT NULL,
					status      TEXT NOT NULL,
					applied     INTEGER NOT NULL DEFAULT 0,
					latency_ms  INTEGER NOT NULL DEFAULT 0,
					notes       TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX IF NOT EXISTS idx_receipts_device_ts ON receipts(device_id, ts)`,
				`CREATE INDEX IF NOT EXISTS idx_receipts_action ON receipts(action_id)`,

				`CREATE TABLE IF NOT EXISTS audits (
					id       INTEGER PRIMARY KEY AUTOINCREMENT,
					ts       DATETIME NOT NULL,
					actor    TEXT NOT NULL,
					action   TEXT NOT NULL,
					payload  TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_audits_ts ON audits(ts)`,
			},
		},
	}
}
