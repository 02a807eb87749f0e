package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

type lotRef struct {
	ID          string `json:"id"`
	BatchNumber string `json:"batch_number"`
	Stage       string `json:"stage"`
	Status      string `json:"status"`
	Quantity    int    `json:"quantity"`
}

// sqliteLedger points every command at a fresh sqlite file and report root.
func sqliteLedger(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("LOTLEDGER_STORAGE_DRIVER", "sqlite")
	t.Setenv("LOTLEDGER_STORAGE_SQLITE_PATH", filepath.Join(dir, "ledger.db"))
	t.Setenv("LOTLEDGER_BLOB_DRIVER", "fs")
	t.Setenv("LOTLEDGER_BLOB_FS_ROOT", filepath.Join(dir, "reports"))
	return dir
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// executeJSON runs a command with --format json and decodes its data into out.
func executeJSON(t *testing.T, out any, args ...string) {
	t.Helper()
	code, stdout, stderr := execute(t, append(args, "--format", "json")...)
	require.Equal(t, ExitSuccess, code, "stdout=%s stderr=%s", stdout, stderr)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(stdout), &env))
	require.Equal(t, "ok", env.Status)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "migrate", "intake", "convert", "destroy", "lab", "package", "distribute", "show", "history", "trace", "verify"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"config", "verbose", "format", "trace-spans"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestInvalidFormatIsCommandError(t *testing.T) {
	sqliteLedger(t)
	code, _, stderr := execute(t, "verify", "--format", "yaml")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "invalid format")
}

func TestMissingRequiredFlagIsCommandError(t *testing.T) {
	sqliteLedger(t)
	code, _, stderr := execute(t, "intake", "--quantity", "10")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "member")
}

func TestUnknownCommandIsCommandError(t *testing.T) {
	code, _, stderr := execute(t, "harvest")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestRejectedOperationReportsDomainCode(t *testing.T) {
	sqliteLedger(t)
	var seed lotRef
	executeJSON(t, &seed, "intake", "-q", "10", "-m", "alice")

	code, stdout, _ := execute(t, "destroy", "--lot", seed.BatchNumber, "-q", "50", "-r", "mold", "-m", "alice", "--format", "json")
	assert.Equal(t, ExitFailure, code)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(stdout), &env))
	assert.Equal(t, "error", env.Status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "quantity_exceeded", env.Error.Code)
	assert.False(t, env.Error.Retryable)
}

func TestTextErrorGoesToStderrOnce(t *testing.T) {
	sqliteLedger(t)
	code, stdout, stderr := execute(t, "show", "seed:01:01:2026:9999")
	assert.Equal(t, ExitFailure, code)
	assert.Empty(t, stdout)
	assert.Equal(t, 1, strings.Count(stderr, "Error"), stderr)
	assert.Contains(t, stderr, "not_found")
}

func TestCustodyFlowAcrossInvocations(t *testing.T) {
	dir := sqliteLedger(t)

	var seed lotRef
	executeJSON(t, &seed, "intake", "-q", "10", "--strain", "strain-7", "-m", "alice")
	assert.Equal(t, "propagation_seed", seed.Stage)
	assert.Equal(t, 10, seed.Quantity)

	var flowering lotRef
	executeJSON(t, &flowering, "convert", "-s", seed.BatchNumber, "-t", "flowering_plant", "-q", "4", "-m", "alice")
	assert.Equal(t, 4, flowering.Quantity)

	var harvest, drying, processing, lab lotRef
	executeJSON(t, &harvest, "convert", "-s", flowering.ID, "-t", "harvest", "-q", "4", "--output-weight", "500", "-m", "alice")
	executeJSON(t, &drying, "convert", "-s", harvest.BatchNumber, "-t", "drying", "--output-weight", "80", "-m", "bob")
	executeJSON(t, &processing, "convert", "-s", drying.BatchNumber, "-t", "processing", "--output-weight", "60", "-m", "bob")
	executeJSON(t, &lab, "convert", "-s", processing.BatchNumber, "-t", "lab_testing", "--sample-weight", "5", "-m", "bob")
	assert.Equal(t, "lab_testing", lab.Stage)

	executeJSON(t, nil, "lab", "--lot", lab.BatchNumber, "--status", "passed", "--thc", "21.4", "--cbd", "0.6", "-m", "carol")

	var packaged struct {
		Units []lotRef
	}
	executeJSON(t, &packaged, "package", "--lab", lab.BatchNumber, "--line", "5x10", "--remainder", "5", "-m", "dave")
	require.Len(t, packaged.Units, 5)

	unit := packaged.Units[0]
	executeJSON(t, nil, "distribute", "--unit", unit.BatchNumber, "--recipient", "member-118", "-m", "erin")

	code, _, stderr := execute(t, "distribute", "--unit", unit.BatchNumber, "--recipient", "member-119", "-m", "erin")
	assert.Equal(t, ExitFailure, code, stderr)

	var traced struct {
		Lineage struct {
			Subject     lotRef   `json:"subject"`
			Ancestors   []lotRef `json:"ancestors"`
			Descendants []lotRef `json:"descendants"`
		} `json:"lineage"`
		Report *struct {
			Key string `json:"key"`
		} `json:"report"`
	}
	executeJSON(t, &traced, "trace", unit.ID, "--report", "csv")
	require.NotEmpty(t, traced.Lineage.Ancestors)
	assert.Equal(t, seed.ID, traced.Lineage.Ancestors[len(traced.Lineage.Ancestors)-1].ID)
	require.Len(t, traced.Lineage.Descendants, 1)
	assert.Equal(t, "distribution", traced.Lineage.Descendants[0].Stage)
	require.NotNil(t, traced.Report)
	assert.True(t, strings.HasPrefix(traced.Report.Key, "reports/"+unit.BatchNumber+"/"))
	_, err := os.Stat(filepath.Join(dir, "reports", filepath.FromSlash(traced.Report.Key)))
	require.NoError(t, err)

	var history []struct {
		Operation string `json:"operation"`
	}
	executeJSON(t, &history, "history", seed.BatchNumber)
	assert.NotEmpty(t, history)

	code, stdout, stderr := execute(t, "verify")
	assert.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "ledger is consistent")
}

func TestParsePackageLine(t *testing.T) {
	tests := []struct {
		raw     string
		count   int
		weight  string
		price   string
		label   string
		wantErr bool
	}{
		{raw: "10x5", count: 10, weight: "5"},
		{raw: "2X2.5@12.50:sample-pack", count: 2, weight: "2.5", price: "12.5", label: "sample-pack"},
		{raw: "3x1:gift", count: 3, weight: "1", label: "gift"},
		{raw: "10", wantErr: true},
		{raw: "ax5", wantErr: true},
		{raw: "3x0", wantErr: true},
		{raw: "3x1@cheap", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			line, err := parsePackageLine(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ExitCommandError, GetExitCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.count, line.UnitCount)
			assert.Equal(t, tt.weight, line.UnitWeight.String())
			assert.Equal(t, tt.label, line.Label)
			if tt.price == "" {
				assert.Nil(t, line.Price)
			} else {
				require.NotNil(t, line.Price)
				assert.Equal(t, tt.price, line.Price.String())
			}
		})
	}
}

func TestMigrateWithoutPostgres(t *testing.T) {
	sqliteLedger(t)
	code, stdout, stderr := execute(t, "migrate")
	assert.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "no schema to migrate")
}

func TestExitErrorUnwraps(t *testing.T) {
	base := NewExitError(ExitFailure, "inner")
	err := WrapExitError(ExitRetryable, "outer", base)
	assert.Equal(t, ExitRetryable, GetExitCode(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}
