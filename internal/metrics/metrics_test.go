package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	RunsTotal.WithLabelValues("PASSED").Inc()
	PollRoundsTotal.Inc()

	path := filepath.Join(t.TempDir(), "nested", "suiterun.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`suiterun_runs_total{outcome="PASSED"}`,
		"suiterun_poll_rounds_total",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in textfile output", want)
		}
	}
}
