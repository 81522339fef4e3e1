package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/dynamic-entitystore-go/example/cmd/entityctl/cli"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := cli.NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(t.Context())

	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func Test_Demo_Prints_Events_And_Read_Models(t *testing.T) {
	out, _, err := run(t, "demo")
	require.NoError(t, err)

	assert.Equal(t, `event BookCopyAddedToCirculation b01
event BookCopyAddedToCirculation b02
event BookCopyAddedToCirculation b03
event ReaderRegistered r01
event ReaderRegistered r02
event BookCopyLentToReader b01
event BookCopyLentToReader b02
event BookCopyReturnedByReader b01
event BookCopyRemovedFromCirculation b03
event ReaderContractCanceled r02
book b01 "Dune" by Frank Herbert lent=false
book b02 "Emma" by Jane Austen lent=true
reader r01 Ann books=1
`, out)
}

func Test_Demo_Runs_On_SQLite(t *testing.T) {
	settings := writeFile(t, "settings.yaml", "engine: sqlite\nsqlite:\n  path: "+filepath.Join(t.TempDir(), "demo.db")+"\n")

	out, _, err := run(t, "demo", "--config", settings)
	require.NoError(t, err)

	assert.Contains(t, out, "book b02 \"Emma\" by Jane Austen lent=true\n")
	assert.Contains(t, out, "reader r01 Ann books=1\n")
}

func Test_Demo_Reports_Prometheus_Metrics(t *testing.T) {
	out, _, err := run(t, "demo", "--metrics", "prometheus")
	require.NoError(t, err)

	assert.Contains(t, out, "# TYPE entityctl_entitystore_operation_duration_seconds histogram")
	assert.Contains(t, out, `entityctl_eventsink_events_published_total{event_type="BookCopyLentToReader",sink="in_process"} 2`)
}

func Test_Demo_Reports_OpenTelemetry_Metrics(t *testing.T) {
	out, _, err := run(t, "demo", "--metrics", "otel")
	require.NoError(t, err)

	assert.Contains(t, out, "metric entitystore_operation_duration_seconds points=")
	assert.Contains(t, out, "metric eventsink_events_published_total points=")
}

func Test_Demo_Logs_With_Zap(t *testing.T) {
	_, errOut, err := run(t, "demo", "--log-backend", "zap")
	require.NoError(t, err)

	assert.Contains(t, errOut, "entitystore: operation succeeded")
	assert.Contains(t, errOut, `"actor":"entityctl"`)
}

func Test_Demo_Logs_With_Slog(t *testing.T) {
	_, errOut, err := run(t, "demo")
	require.NoError(t, err)

	assert.Contains(t, errOut, `"msg":"entitystore: operation succeeded"`)
}

func Test_Root_Rejects_Invalid_Flags(t *testing.T) {
	_, _, err := run(t, "demo", "--log-backend", "logrus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log backend")

	_, _, err = run(t, "demo", "--metrics", "statsd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid metrics backend")
}

const filters = `
filters:
  - name: removed
    description: copies taken out of circulation
    expression: Deleted == true
  - name: by_author
    expression: Author == @0
    params: [Jane Austen]
`

func Test_Filters_List_Prints_Names_And_Expressions(t *testing.T) {
	path := writeFile(t, "filters.yaml", filters)

	out, _, err := run(t, "filters", "list", "--catalog", path)
	require.NoError(t, err)

	assert.Equal(t, "removed\tDeleted == true\nby_author\tAuthor == @0\n", out)
}

func Test_Filters_Validate_Checks_Members_Of_The_Entity(t *testing.T) {
	path := writeFile(t, "filters.yaml", filters)

	out, _, err := run(t, "filters", "validate", "--catalog", path, "--entity", "book")
	require.NoError(t, err)
	assert.Equal(t, "2 filters valid for book\n", out)

	_, _, err = run(t, "filters", "validate", "--catalog", path, "--entity", "reader")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "removed")
	assert.Contains(t, err.Error(), "by_author")

	_, _, err = run(t, "filters", "validate", "--catalog", path, "--entity", "loan")
	require.Error(t, err)
}

func Test_Filters_Require_A_Catalog(t *testing.T) {
	_, _, err := run(t, "filters", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no filter catalog")
}

func Test_DDL_Prints_Tables_For_The_Dialect(t *testing.T) {
	out, _, err := run(t, "ddl", "--dialect", "sqlite", "--outbox-table", "library_outbox")
	require.NoError(t, err)

	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "books" (`)
	assert.Contains(t, out, `"id" TEXT PRIMARY KEY`)
	assert.Contains(t, out, `"lent_to" TEXT`)
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "readers" (`)
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "library_outbox" (`)
	assert.Contains(t, out, `"occurred_at" TIMESTAMP NOT NULL`)

	out, _, err = run(t, "ddl")
	require.NoError(t, err)
	assert.Contains(t, out, `"occurred_at" TIMESTAMPTZ NOT NULL`)
	assert.Contains(t, out, `"payload" JSONB NOT NULL`)

	_, _, err = run(t, "ddl", "--dialect", "oracle")
	require.Error(t, err)
}
