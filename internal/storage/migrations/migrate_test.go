package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `-- header
CREATE TABLE a (x String DEFAULT 'it''s');

-- second
CREATE TABLE b (y UInt64)
ENGINE = MergeTree() ORDER BY y;
`
	stmts, err := splitStatements(sql)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE a"))
	assert.Contains(t, stmts[1], "ORDER BY y")

	_, err = splitStatements(`INSERT INTO t VALUES ('a;b');`)
	assert.ErrorIs(t, err, ErrSemicolonInString)
}

func TestEmbeddedFiles(t *testing.T) {
	pg, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_runs.sql", "002_trade_logs.sql"}, pg)

	ch, err := sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_bars.sql", "002_equity.sql"}, ch)

	for _, f := range ch {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+f)
		require.NoError(t, err)
		stmts, err := splitStatements(string(data))
		require.NoError(t, err, f)
		assert.Len(t, stmts, 1, f)
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default@localhost:9000/lab")
	require.NoError(t, err)
	assert.Equal(t, "lab", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
