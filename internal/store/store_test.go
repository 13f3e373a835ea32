package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		if i == 0 {
			_, err = s.db.Exec(`INSERT INTO sessions (id, document, window_key, started_at) VALUES ('s1', 'd', 'k', 't')`)
			require.NoError(t, err)
		}
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/trace.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prepare trace database")
}

func TestClose(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())

	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_ = s.Close()
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name string
		want string
	}{
		{name: "journal_mode", want: "wal"},
		{name: "synchronous", want: "1"},
		{name: "busy_timeout", want: "5000"},
		{name: "foreign_keys", want: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.pragma(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchema_Indexes(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"idx_commands_cmd", "idx_messages_tag"}, names)
}

func TestSchema_Constraints(t *testing.T) {
	s := createTestStore(t)
	_, err := s.db.Exec(`INSERT INTO sessions (id, document, window_key, started_at) VALUES ('s1', 'd', 'k', 't')`)
	require.NoError(t, err)

	tests := []struct {
		name string
		stmt string
	}{
		{
			name: "direction must be in or out",
			stmt: `INSERT INTO messages (session_id, seq, conn, direction, tag, size) VALUES ('s1', 1, 1, 'sideways', 'READY', 5)`,
		},
		{
			name: "message needs a session",
			stmt: `INSERT INTO messages (session_id, seq, conn, direction, tag, size) VALUES ('missing', 1, 1, 'in', 'READY', 5)`,
		},
		{
			name: "command needs a session",
			stmt: `INSERT INTO commands (session_id, seq, cmd_id, verb, arg, outcome) VALUES ('missing', 1, 1, 'PNG', 'a.png', 'succeeded')`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.db.Exec(tt.stmt)
			assert.Error(t, err)
		})
	}
}

func TestSchema_SeqUniquePerSession(t *testing.T) {
	s := createTestStore(t)
	_, err := s.db.Exec(`INSERT INTO sessions (id, document, window_key, started_at) VALUES ('s1', 'd', 'k', 't')`)
	require.NoError(t, err)

	insert := `INSERT INTO commands (session_id, seq, cmd_id, verb, arg, outcome) VALUES ('s1', 1, 1, 'PNG', 'a.png', 'succeeded')`
	_, err = s.db.Exec(insert)
	require.NoError(t, err)
	_, err = s.db.Exec(insert)
	assert.Error(t, err)
}
