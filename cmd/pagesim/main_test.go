package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/pagesim/pkg/client"
	"github.com/Sternrassler/pagesim/pkg/dataset"
	"github.com/Sternrassler/pagesim/pkg/random"
)

var recordLine = regexp.MustCompile(`^(.+)\((\d+)\)$`)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--log-level", "disabled", "--latency-scale", "0", "--retry-backoff", "1ms"}, args...))

	err := cmd.Execute()
	return buf.String(), err
}

func parseIDs(t *testing.T, output string) []int {
	t.Helper()

	var ids []int
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		m := recordLine.FindStringSubmatch(line)
		if m == nil {
			t.Fatalf("unexpected output line %q", line)
		}
		id, err := strconv.Atoi(m[2])
		if err != nil {
			t.Fatalf("bad id in %q: %v", line, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestRootCmd_WalksWholeList(t *testing.T) {
	output, err := execute(t, "--seed", "7")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	ids := parseIDs(t, output)
	if len(ids) < 100 || len(ids) > 200 {
		t.Fatalf("got %d records, want 100..200", len(ids))
	}

	sort.Ints(ids)
	for i, id := range ids {
		if id != i+1 {
			t.Fatalf("ids not a permutation of 1..%d: position %d holds %d", len(ids), i, id)
		}
	}
}

func TestRootCmd_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagesim.json")
	cfg := `{
  "seed": 11,
  "dataset-min": 10,
  "dataset-max": 10,
  "page-min": 3,
  "page-max": 3,
  "error-probability": 0.000001,
  "duplicate-probability": 0.000001,
  "empty-probability": 0.000001
}`
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	output, err := execute(t, "--config", path)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	ids := parseIDs(t, output)
	if len(ids) != 10 {
		t.Errorf("got %d records, want 10", len(ids))
	}
}

func TestRootCmd_JSONWithEnvPageLimit(t *testing.T) {
	t.Setenv("PAGESIM_MAX_PAGES", "1")
	t.Setenv("PAGESIM_PAGE_MAX", "5")

	output, err := execute(t, "--seed", "3", "--json")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var records []dataset.Record
	if err := json.Unmarshal([]byte(output), &records); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output)
	}
	if len(records) > 5 {
		t.Errorf("got %d records from one page of at most 5", len(records))
	}
}

func TestRootCmd_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown log level", args: []string{"--log-level", "verbose"}},
		{name: "zero error probability", args: []string{"--error-probability", "0"}},
		{name: "inverted page range", args: []string{"--page-min", "9", "--page-max", "3"}},
		{name: "negative latency scale", args: []string{"--latency-scale", "-1"}},
		{name: "missing config file", args: []string{"--config", "/nonexistent/pagesim.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("Execute() error = nil, want error")
			}
		})
	}
}

func TestScaleRange(t *testing.T) {
	r := random.DurationRange{Min: time.Second, Max: 2 * time.Second}

	got := scaleRange(r, 0.5)
	if got.Min != 500*time.Millisecond || got.Max != time.Second {
		t.Errorf("scaleRange(0.5) = %+v", got)
	}
	if got := scaleRange(r, 0); got.Min != 0 || got.Max != 0 {
		t.Errorf("scaleRange(0) = %+v", got)
	}
}

func TestRetryPolicy(t *testing.T) {
	v := viper.New()
	if got := retryPolicy(v); got.For(client.ErrorClassRateLimit) != client.DefaultRetryPolicy().For(client.ErrorClassRateLimit) {
		t.Errorf("retryPolicy() without override = %+v", got)
	}

	v.Set("retry-backoff", "10s")
	policy := retryPolicy(v)
	rl := policy.For(client.ErrorClassRateLimit)
	if rl.InitialBackoff != 10*time.Second {
		t.Errorf("InitialBackoff = %v, want 10s", rl.InitialBackoff)
	}
	if rl.MaxBackoff < rl.InitialBackoff {
		t.Errorf("MaxBackoff %v below InitialBackoff %v", rl.MaxBackoff, rl.InitialBackoff)
	}
}
