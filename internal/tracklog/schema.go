package tracklog

const schemaDDL = `
CREATE TABLE IF NOT EXISTS snapshots (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	position_slug    TEXT NOT NULL,
	date             TEXT NOT NULL,
	underlying_price REAL,
	delta            REAL NOT NULL DEFAULT 0,
	beta_delta       REAL NOT NULL DEFAULT 0,
	theta            REAL NOT NULL DEFAULT 0,
	iv_rank          REAL NOT NULL DEFAULT 0,
	pop              REAL,
	pnl              REAL NOT NULL DEFAULT 0,
	pct_max_profit   REAL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_slug ON snapshots(position_slug);
CREATE INDEX IF NOT EXISTS idx_snapshots_date ON snapshots(date);

CREATE TABLE IF NOT EXISTS closed_trades (
	position_slug TEXT PRIMARY KEY,
	strategy      TEXT NOT NULL,
	ticker        TEXT NOT NULL,
	opened        TEXT NOT NULL,
	closed        TEXT NOT NULL,
	pnl           REAL NOT NULL DEFAULT 0,
	tags          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_closed_ticker ON closed_trades(ticker);

CREATE VIEW IF NOT EXISTS v_closed_by_strategy AS
SELECT
	strategy,
	COUNT(*)  AS trades,
	SUM(pnl)  AS total_pnl,
	AVG(pnl)  AS avg_pnl
FROM closed_trades
GROUP BY strategy
ORDER BY strategy;
`
