package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/secmaster/internal/feed"
	"github.com/JonMunkholm/secmaster/internal/rules"
	"github.com/JonMunkholm/secmaster/internal/security"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	if data != nil {
		resp.Data = data
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRootInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "identifier", "figi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestIdentifierCommand(t *testing.T) {
	out, err := execute(t, "--format", "json", "identifier", "isin", "-n", "3", "--seed", "7")
	require.NoError(t, err)

	var ids []string
	resp := decodeResponse(t, out, &ids)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, ids, 3)

	engine := rules.New(rules.WithChecksumVerification())
	for _, id := range ids {
		issues := engine.Check(1, security.Record{
			security.ColFIGI: "BBG000BLNNH3", security.ColCUSIP: "037833100",
			security.ColSEDOL: "2046251", security.ColISIN: id,
		})
		for _, is := range issues {
			assert.NotEqual(t, "ISIN", is.Field, "generated ISIN %s: %s", id, is.Message)
		}
	}

	again, err := execute(t, "--format", "json", "identifier", "isin", "-n", "3", "--seed", "7")
	require.NoError(t, err)
	assert.Equal(t, out, again, "same seed gives same identifiers")
}

func TestIdentifierCommand_Check(t *testing.T) {
	out, err := execute(t, "identifier", "sedol", "--check", "b0ybkj")
	require.NoError(t, err)
	assert.Equal(t, "B0YBKJ7\n", out)
}

func TestIdentifierCommand_UnknownKind(t *testing.T) {
	out, err := execute(t, "identifier", "ric")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "VAL002")
}

func TestSeedThenValidate(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "--format", "json", "seed",
		"--rows", "20", "--fields", "4", "--vendor", "acme",
		"--date", "2024-01-02", "--seed", "42", "--out", dir)
	require.NoError(t, err)

	var res SeedResult
	decodeResponse(t, out, &res)
	assert.Equal(t, filepath.Join(dir, "acme_2024-01-02.csv"), res.File)
	assert.Equal(t, 20, res.Rows)

	reports := t.TempDir()
	out, err = execute(t, "--format", "json", "validate", "--checksums", "--out", reports, res.File)
	require.NoError(t, err, out)

	var vr ValidationResult
	decodeResponse(t, out, &vr)
	assert.True(t, vr.Valid)
	require.Len(t, vr.Files, 1)
	assert.Equal(t, 20, vr.Files[0].Rows)
	assert.Zero(t, vr.Files[0].Errors)
	_, err = os.Stat(vr.Files[0].ReportFile)
	assert.NoError(t, err)
}

func TestValidate_RuleErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, feed.WriteFile(path, []string{"FIGI", "CUSIP", "SEDOL", "ISIN", "COMPANY_NAME",
		"CURRENCY", "ASSET_CLASS", "ASSET_GROUP", "APPLIED_DATE"}, [][]string{
		{"not-a-figi", "037833100", "", "US0378331008", "Apple Inc.", "USD", "Equity", "Domestic", "2024-01-02"},
	}))

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "1 with issues (1 warnings, 1 errors)")
}

func TestValidate_MissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.csv")
	require.NoError(t, feed.WriteFile(path, []string{"FIGI", "PRICE"}, [][]string{{"BBG000BLNNH3", "1"}}))

	out, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "FILE002", resp.Error.Code)
}

func TestSimulateCommand(t *testing.T) {
	seedDir := t.TempDir()
	_, err := execute(t, "seed", "--rows", "5", "--fields", "3", "--vendor", "acme",
		"--date", "2024-01-05", "--seed", "1", "--out", seedDir)
	require.NoError(t, err)

	outDir := t.TempDir()
	out, err := execute(t, "--format", "json", "simulate", filepath.Join(seedDir, "acme_2024-01-05.csv"),
		"--days", "2", "--rows", "2", "--fields", "1", "--seed", "3", "--out", outDir)
	require.NoError(t, err, out)

	// 2024-01-05 is a Friday.
	for _, name := range []string{"acme_2024-01-08.csv", "acme_2024-01-09.csv"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
}

func TestSimulateCommand_BadDays(t *testing.T) {
	_, err := execute(t, "simulate", "whatever.csv", "--days", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReloadCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	input := t.TempDir()
	require.NoError(t, feed.WriteFile(filepath.Join(input, "acme_2024-01-02.csv"),
		[]string{"FIGI", "CUSIP", "SEDOL", "ISIN", "COMPANY_NAME", "CURRENCY", "ASSET_CLASS", "ASSET_GROUP", "PRICE", "APPLIED_DATE"},
		[][]string{
			{"BBG000BLNNH3", "037833100", "2046251", "US0378331008", "Apple Inc.", "USD", "Equity", "Domestic", "10", "2024-01-01"},
			{"BBG000BLNNH3", "037833100", "2046251", "US0378331008", "Apple Inc.", "USD", "Equity", "Domestic", "11", "2024-01-02"},
		}))

	t.Setenv("VERSION_STORE_DRIVER", "sqlite")
	t.Setenv("VERSION_STORE_SQLITE_PATH", filepath.Join(t.TempDir(), "versions.db"))
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("PIPELINE_REPORT_DIR", t.TempDir())

	out, err := execute(t, "--format", "json", "reload", input, "--workers", "1")
	require.NoError(t, err, out)

	var sum struct {
		Rows          int   `json:"rows"`
		RowsVersioned int64 `json:"rows_versioned"`
		RowsCached    int64 `json:"rows_cached"`
	}
	decodeResponse(t, out, &sum)
	assert.Equal(t, 2, sum.Rows)
	assert.Equal(t, int64(2), sum.RowsVersioned)
	assert.Equal(t, int64(2), sum.RowsCached)
}

func TestReloadCommand_ConfigError(t *testing.T) {
	t.Setenv("VERSION_STORE_DRIVER", "oracle")

	out, err := execute(t, "reload", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "VERSION_STORE_DRIVER")
}
