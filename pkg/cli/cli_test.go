package cli_test

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/cli"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

func repoArgs(dbPath string) []string {
	return []string{"--repository-backend", "sqlite", "--sqlite-path", dbPath}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := cli.RunWithWriter(context.Background(), append([]string{"casekeeper", "--log-output", "stderr"}, args...), "test", &buf)
	return buf.String(), err
}

func TestRun_IngestAndAudit(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "casekeeper.db")

	payloads := filepath.Join(dir, "payloads.jsonl")
	gt.NoError(t, os.WriteFile(payloads, []byte(
		`{"userId":"u-1","rule":"velocity","score":0.92}`+"\n"+
			`{"userId":"u-2","rule":"velocity","score":0.88}`+"\n"), 0o600)).Required()

	out, err := runCLI(t, append([]string{"ingest", "--bot-id", "velocity", "--input", payloads,
		"--records-processed", "1200", "--executed-at", "2026-10-18T08:55:00Z"}, repoArgs(dbPath)...)...)
	gt.NoError(t, err).Required()
	gt.String(t, out).Contains("2 of 2 incidents registered")

	t.Run("audit list shows execution and incidents", func(t *testing.T) {
		out, err := runCLI(t, append([]string{"audit", "list"}, repoArgs(dbPath)...)...)
		gt.NoError(t, err).Required()
		gt.String(t, out).Contains("bot-executions")
		gt.String(t, out).Contains("case-incidents")
		gt.Number(t, strings.Count(out, "case-incidents")).Equal(2)
	})

	t.Run("audit list filters by table", func(t *testing.T) {
		out, err := runCLI(t, append([]string{"audit", "list", "--table", "bot-executions"}, repoArgs(dbPath)...)...)
		gt.NoError(t, err).Required()
		gt.Number(t, strings.Count(out, "bot-executions")).Equal(1)
	})

	t.Run("audit list rejects malformed time", func(t *testing.T) {
		_, err := runCLI(t, append([]string{"audit", "list", "--from", "yesterday"}, repoArgs(dbPath)...)...)
		gt.Error(t, err).Is(model.ErrValidation)
	})

	t.Run("audit export writes JSON Lines", func(t *testing.T) {
		dest := filepath.Join(dir, "exports", "audit.jsonl")
		out, err := runCLI(t, append([]string{"audit", "export", "--output", dest}, repoArgs(dbPath)...)...)
		gt.NoError(t, err).Required()
		gt.String(t, out).Contains("exported 3 entries")

		f, err := os.Open(dest)
		gt.NoError(t, err).Required()
		defer func() { _ = f.Close() }()

		lines := 0
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines++
		}
		gt.Value(t, lines).Equal(3)
	})

	t.Run("validate --check-db passes", func(t *testing.T) {
		_, err := runCLI(t, append([]string{"validate", "--check-db"}, repoArgs(dbPath)...)...)
		gt.NoError(t, err)
	})
}

func TestRun_IngestEmptyExecution(t *testing.T) {
	dir := t.TempDir()
	payloads := filepath.Join(dir, "empty.json")
	gt.NoError(t, os.WriteFile(payloads, []byte("[]"), 0o600)).Required()

	out, err := runCLI(t, append([]string{"ingest", "--bot-id", "velocity", "--input", payloads},
		repoArgs(filepath.Join(dir, "casekeeper.db"))...)...)
	gt.NoError(t, err).Required()
	gt.String(t, out).Contains("0 of 0 incidents registered")
}

func TestRun_IngestRejectsNonObjectLine(t *testing.T) {
	dir := t.TempDir()
	payloads := filepath.Join(dir, "bad.jsonl")
	gt.NoError(t, os.WriteFile(payloads, []byte("{\"userId\":\"u-1\"}\n[1,2]\n"), 0o600)).Required()

	_, err := runCLI(t, append([]string{"ingest", "--bot-id", "velocity", "--input", payloads},
		repoArgs(filepath.Join(dir, "casekeeper.db"))...)...)
	gt.Error(t, err).Is(model.ErrValidation)
}

func TestRun_Migrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "casekeeper.db")

	_, err := runCLI(t, append([]string{"migrate"}, repoArgs(dbPath)...)...)
	gt.NoError(t, err).Required()

	_, err = runCLI(t, append([]string{"migrate", "--dry-run"}, repoArgs(dbPath)...)...)
	gt.NoError(t, err)
}

func TestReadPayloads(t *testing.T) {
	t.Run("JSON array", func(t *testing.T) {
		docs, err := cli.ReadPayloads(strings.NewReader(`[{"a":1},{"b":2}]`))
		gt.NoError(t, err).Required()
		gt.Array(t, docs).Length(2)
	})

	t.Run("JSON Lines with blank lines", func(t *testing.T) {
		docs, err := cli.ReadPayloads(strings.NewReader("{\"a\":1}\n\n{\"z\":2,\"a\":3}\n"))
		gt.NoError(t, err).Required()
		gt.Array(t, docs).Length(2)
		gt.Value(t, docs[1].Keys()).Equal([]string{"z", "a"})
	})

	t.Run("scalar line is rejected", func(t *testing.T) {
		_, err := cli.ReadPayloads(strings.NewReader("{\"a\":1}\n42\n"))
		gt.Error(t, err).Is(model.ErrValidation)
	})

	t.Run("empty input", func(t *testing.T) {
		docs, err := cli.ReadPayloads(strings.NewReader("  \n"))
		gt.NoError(t, err).Required()
		gt.Array(t, docs).Length(0)
	})
}
