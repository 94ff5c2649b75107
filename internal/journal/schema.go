package journal

// Schema DDL. Tables are created only when missing so several instances
// can share one journal file; rows are scoped by run_id.
const (
	createRuns = `CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    instance INTEGER NOT NULL,
    started_at TEXT NOT NULL
);`

	createDigs = `CREATE TABLE IF NOT EXISTS digs (
    run_id TEXT NOT NULL,
    pos_x INTEGER NOT NULL,
    pos_y INTEGER NOT NULL,
    depth INTEGER NOT NULL,
    license_id INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    tokens INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(run_id)
);`

	createCashes = `CREATE TABLE IF NOT EXISTS cashes (
    run_id TEXT NOT NULL,
    depth INTEGER NOT NULL,
    coins INTEGER NOT NULL,
    ok INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(run_id)
);`
)

const (
	idxDigsRunDepth   = `CREATE INDEX IF NOT EXISTS idx_digs_run_depth ON digs(run_id, depth);`
	idxCashesRunDepth = `CREATE INDEX IF NOT EXISTS idx_cashes_run_depth ON cashes(run_id, depth);`
)

var schemaDDL = []string{
	createRuns,
	createDigs,
	createCashes,
	idxDigsRunDepth,
	idxCashesRunDepth,
}

const (
	insertRun  = `INSERT INTO runs (run_id, instance, started_at) VALUES (?, ?, ?)`
	insertDig  = `INSERT INTO digs (run_id, pos_x, pos_y, depth, license_id, outcome, tokens, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	insertCash = `INSERT INTO cashes (run_id, depth, coins, ok, created_at) VALUES (?, ?, ?, ?, ?)`

	// selectSummary folds both tables into one row per depth.
	selectSummary = `SELECT depth,
    SUM(digs), SUM(found), SUM(tokens), SUM(cashed), SUM(coins)
FROM (
    SELECT depth, 1 AS digs,
        CASE WHEN outcome = 'found' THEN 1 ELSE 0 END AS found,
        tokens, 0 AS cashed, 0 AS coins
    FROM digs WHERE run_id = ?
    UNION ALL
    SELECT depth, 0, 0, 0, ok, coins
    FROM cashes WHERE run_id = ?
)
GROUP BY depth
ORDER BY depth`
)
