package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/scanner"
)

// fixtureSource reports every file under root with a fixed safety tier.
type fixtureSource struct {
	root   string
	tier   core.SafetyTier
	walker *scanner.WalkDirScanner
}

func (s *fixtureSource) Name() string            { return "fixture" }
func (s *fixtureSource) Category() core.Category { return core.CategoryTempFiles }
func (s *fixtureSource) Description() string     { return "Test fixture files" }
func (s *fixtureSource) SupportedPlatforms() []core.Platform { return []core.Platform{core.PlatformAll} }

func (s *fixtureSource) Discover(ctx context.Context) (<-chan core.Candidate, <-chan error) {
	return s.walker.Walk(ctx, scanner.WalkRequest{
		Roots: []string{s.root},
		Classify: func(f scanner.FileInfo) (core.Candidate, bool) {
			return f.Timestamps(core.Candidate{
				Path:        f.Path,
				Size:        f.Size,
				Category:    core.CategoryTempFiles,
				Description: "fixture " + filepath.Base(f.Path),
				Safety:      s.tier,
			}), true
		},
	})
}

type env struct {
	dir    string
	files  []string
	config string
}

// setup swaps the built-in scanners for a fixture over a temp directory
// holding two files older than the default minimum age.
func setup(t *testing.T, tier core.SafetyTier) *env {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")

	e := &env{dir: t.TempDir()}
	old := time.Now().Add(-72 * time.Hour)
	for i, name := range []string{"a.tmp", "b.tmp"} {
		path := filepath.Join(e.dir, name)
		if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 1024*(i+1)), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatal(err)
		}
		e.files = append(e.files, path)
	}

	e.config = filepath.Join(t.TempDir(), "purge.yaml")
	if err := os.WriteFile(e.config, []byte("version: 1\nlogging:\n  level: error\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	prev := registerSources
	registerSources = func(reg *scanner.Registry) error {
		return reg.Register("fixture", func(d scanner.Deps) core.Source {
			return &fixtureSource{root: e.dir, tier: tier, walker: d.Walker}
		})
	}
	t.Cleanup(func() { registerSources = prev })
	return e
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := execute(context.Background(), args, streams{in: strings.NewReader(stdin), out: &out, err: &errOut})
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func (e *env) run(t *testing.T, args ...string) result {
	t.Helper()
	return run(t, "", append([]string{"--config", e.config}, args...)...)
}

func (e *env) remaining(t *testing.T) int {
	t.Helper()
	n := 0
	for _, f := range e.files {
		if _, err := os.Stat(f); err == nil {
			n++
		}
	}
	return n
}

func TestVersion(t *testing.T) {
	res := run(t, "", "version")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "purge dev") {
		t.Errorf("expected version output, got %q", res.stdout)
	}
}

func TestUnsupportedPlatformIsSetupError(t *testing.T) {
	e := setup(t, core.SafetySafe)
	prev := platformFunc
	platformFunc = func() (core.Platform, error) { return "", core.ErrUnsupportedPlatform }
	t.Cleanup(func() { platformFunc = prev })

	res := e.run(t, "--no-audit", "scanners")
	if res.code != exitSetup {
		t.Fatalf("expected exit %d, got %d", exitSetup, res.code)
	}
	if !strings.Contains(res.stderr, "unsupported platform") {
		t.Errorf("unexpected stderr %q", res.stderr)
	}
}

func TestInvalidConfigIsSetupError(t *testing.T) {
	e := setup(t, core.SafetySafe)
	if err := os.WriteFile(e.config, []byte("version: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	res := e.run(t, "scan")
	if res.code != exitSetup {
		t.Fatalf("expected exit %d, got %d", exitSetup, res.code)
	}
	if !strings.Contains(res.stderr, "version") {
		t.Errorf("expected version error, got %q", res.stderr)
	}
}

func TestScannersJSON(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "--no-audit", "--json", "scanners")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	var infos []core.ScannerInfo
	if err := json.Unmarshal([]byte(res.stdout), &infos); err != nil {
		t.Fatalf("decode: %v\n%s", err, res.stdout)
	}
	if len(infos) != 1 || infos[0].Name != "fixture" || !infos[0].Enabled {
		t.Errorf("unexpected scanners %+v", infos)
	}
}

func TestScanJSON(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "--no-audit", "--json", "scan")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	var rep core.ScanReport
	if err := json.Unmarshal([]byte(res.stdout), &rep); err != nil {
		t.Fatalf("decode: %v\n%s", err, res.stdout)
	}
	if rep.TotalFound != 2 || rep.TotalSize != 3072 {
		t.Errorf("expected 2 items / 3072 bytes, got %d / %d", rep.TotalFound, rep.TotalSize)
	}
	if e.remaining(t) != 2 {
		t.Error("scan must not remove files")
	}
}

func TestScanText(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "--no-audit", "scan", "--list")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	for _, want := range []string{"2 items", string(core.CategoryTempFiles), e.files[0], e.files[1]} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("output missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestScanMinAgeFlag(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "--no-audit", "--json", "--min-age-days", "30", "scan")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	var rep core.ScanReport
	if err := json.Unmarshal([]byte(res.stdout), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.TotalFound != 0 {
		t.Errorf("expected files younger than 30 days to be skipped, got %d", rep.TotalFound)
	}
}

func TestScanUnknownScanner(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "--no-audit", "scan", "--scanner", "nope")
	if res.code != exitFailure {
		t.Fatalf("expected exit %d, got %d", exitFailure, res.code)
	}
	if !strings.Contains(res.stderr, `unknown scanner "nope"`) || !strings.Contains(res.stderr, "fixture") {
		t.Errorf("unexpected stderr %q", res.stderr)
	}
}

func TestScanSavesReport(t *testing.T) {
	e := setup(t, core.SafetySafe)
	outDir := t.TempDir()

	res := e.run(t, "--no-audit", "scan", "--output", outDir)
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	saved := filepath.Join(outDir, "scan_results.json")
	if !strings.Contains(res.stderr, saved) {
		t.Errorf("expected saved path in stderr, got %q", res.stderr)
	}
	if _, err := os.Stat(saved); err != nil {
		t.Fatalf("report not written: %v", err)
	}
}

func TestCleanDryRun(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "--no-audit", "--json", "clean", "--dry-run")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	var rep core.CleanupReport
	if err := json.Unmarshal([]byte(res.stdout), &rep); err != nil {
		t.Fatalf("decode: %v\n%s", err, res.stdout)
	}
	if !rep.DryRun || rep.TotalRemoved != 2 || rep.TotalFreed != 3072 {
		t.Errorf("unexpected dry-run report %+v", rep)
	}
	if e.remaining(t) != 2 {
		t.Error("dry run must not remove files")
	}
}

func TestCleanRefusesWithoutYes(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "--no-audit", "clean")
	if res.code != exitFailure {
		t.Fatalf("expected exit %d, got %d", exitFailure, res.code)
	}
	if !strings.Contains(res.stderr, "--yes") {
		t.Errorf("unexpected stderr %q", res.stderr)
	}
	if e.remaining(t) != 2 {
		t.Error("files removed without confirmation")
	}
}

func TestCleanMaxTier(t *testing.T) {
	e := setup(t, core.SafetyWarning)

	res := e.run(t, "--no-audit", "clean", "--yes")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "Nothing to clean") {
		t.Errorf("expected nothing to clean at the safe tier, got %q", res.stdout)
	}
	if e.remaining(t) != 2 {
		t.Fatal("warning-tier files removed at --max-tier safe")
	}

	res = e.run(t, "--no-audit", "clean", "--yes", "--max-tier", "WARNING")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	if e.remaining(t) != 0 {
		t.Error("expected warning-tier files to be removed")
	}

	res = e.run(t, "--no-audit", "clean", "--max-tier", "extreme")
	if res.code != exitFailure || !strings.Contains(res.stderr, "unknown safety tier") {
		t.Errorf("expected tier error, got %d %q", res.code, res.stderr)
	}
}

func TestCleanProtectedPath(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "--no-audit", "--json", "--protected", e.dir, "clean", "--yes")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	var rep core.CleanupReport
	if err := json.Unmarshal([]byte(res.stdout), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.TotalRemoved != 0 || len(rep.Failed) != 2 {
		t.Errorf("expected both items refused, got %+v", rep)
	}
	if e.remaining(t) != 2 {
		t.Error("protected files were removed")
	}
}

func TestCleanFromReportWithAudit(t *testing.T) {
	e := setup(t, core.SafetySafe)
	reportPath := filepath.Join(t.TempDir(), "report.json")
	db := filepath.Join(t.TempDir(), "audit.db")
	auditFlags := []string{"--audit", db, "--audit-backend", "sqlite"}

	res := e.run(t, append(auditFlags, "scan", "--output", reportPath)...)
	if res.code != exitOK {
		t.Fatalf("scan exit %d: %s", res.code, res.stderr)
	}

	res = e.run(t, append(auditFlags, "clean", "--from", reportPath, "--yes")...)
	if res.code != exitOK {
		t.Fatalf("clean exit %d: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "Removed 2 items") {
		t.Errorf("unexpected clean output %q", res.stdout)
	}
	if e.remaining(t) != 0 {
		t.Fatal("files not removed")
	}

	res = e.run(t, append(auditFlags, "--json", "audit", "stats")...)
	if res.code != exitOK {
		t.Fatalf("audit stats exit %d: %s", res.code, res.stderr)
	}
	var stats struct {
		Scans        int64 `json:"scans"`
		Cleanups     int64 `json:"cleanups"`
		ItemsRemoved int64 `json:"items_removed"`
		BytesFreed   int64 `json:"total_bytes_freed"`
	}
	if err := json.Unmarshal([]byte(res.stdout), &stats); err != nil {
		t.Fatalf("decode: %v\n%s", err, res.stdout)
	}
	if stats.Scans != 1 || stats.Cleanups != 1 || stats.ItemsRemoved != 2 || stats.BytesFreed != 3072 {
		t.Errorf("unexpected audit stats %+v", stats)
	}

	res = e.run(t, append(auditFlags, "audit", "verify")...)
	if res.code != exitOK || !strings.Contains(res.stdout, "All records verified") {
		t.Errorf("verify: exit %d %q %q", res.code, res.stdout, res.stderr)
	}

	res = e.run(t, append(auditFlags, "audit", "query", "--action", "remove")...)
	if res.code != exitOK {
		t.Fatalf("query exit %d: %s", res.code, res.stderr)
	}
	for _, f := range e.files {
		if !strings.Contains(res.stdout, f) {
			t.Errorf("query output missing %s:\n%s", f, res.stdout)
		}
	}
}

func TestAuditWithoutDatabase(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "--no-audit", "audit", "stats")
	if res.code != exitSetup {
		t.Fatalf("expected exit %d, got %d", exitSetup, res.code)
	}
}

func TestAuditPruneRequiresAge(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "audit", "prune")
	if res.code != exitFailure || !strings.Contains(res.stderr, "--older-than") {
		t.Errorf("expected --older-than error, got %d %q", res.code, res.stderr)
	}
}

func TestServeAnswersRequests(t *testing.T) {
	e := setup(t, core.SafetySafe)
	stdin := `{"jsonrpc":"2.0","method":"ping","id":1}` + "\n" +
		`{"jsonrpc":"2.0","method":"scan","params":{},"id":2}` + "\n" +
		`{"jsonrpc":"2.0","method":"get_scanners","id":3}` + "\n"

	res := run(t, stdin, "--config", e.config, "--no-audit", "serve")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}

	var ids []string
	sc := bufio.NewScanner(strings.NewReader(res.stdout))
	for sc.Scan() {
		var resp struct {
			ID     json.RawMessage `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *struct{}       `json:"error"`
		}
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			t.Fatalf("bad response line %q: %v", sc.Text(), err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error response %s", sc.Text())
		}
		ids = append(ids, string(resp.ID))
	}
	if strings.Join(ids, ",") != "1,2,3" {
		t.Errorf("expected responses 1,2,3 in order, got %v", ids)
	}
	if !strings.Contains(res.stdout, `"pong"`) || !strings.Contains(res.stdout, `"total_found":2`) {
		t.Errorf("unexpected responses:\n%s", res.stdout)
	}
}

func TestServeRejectsStdoutLogging(t *testing.T) {
	e := setup(t, core.SafetySafe)

	res := e.run(t, "--no-audit", "--log-output", "stdout", "serve")
	if res.code != exitSetup {
		t.Fatalf("expected exit %d, got %d", exitSetup, res.code)
	}
	if res.stdout != "" {
		t.Errorf("serve wrote to stdout: %q", res.stdout)
	}
}

func TestMetricsPortInUseIsSetupError(t *testing.T) {
	e := setup(t, core.SafetySafe)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	res := e.run(t, "--no-audit", "--metrics", "--metrics-addr", ln.Addr().String(), "scanners")
	if res.code != exitSetup {
		t.Fatalf("expected exit %d, got %d: %s", exitSetup, res.code, res.stderr)
	}
	if !strings.Contains(res.stderr, "metrics listen") {
		t.Errorf("unexpected stderr %q", res.stderr)
	}
}

func TestExitErrorUnwraps(t *testing.T) {
	err := setupError(core.ErrUnsupportedPlatform)
	if !errors.Is(err, core.ErrUnsupportedPlatform) {
		t.Error("setupError should wrap its cause")
	}
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != exitSetup {
		t.Errorf("expected exit code %d, got %+v", exitSetup, ee)
	}
}
