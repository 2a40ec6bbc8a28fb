package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestDump_FiltersByPrefix(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{Version: "test", Command: "echo"}, registry)
	c.ProcessStarted("echo", 1)
	c.ChunkRead("stdout", 6)

	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total", Help: "x"})
	registry.MustRegister(other)
	other.Inc()

	var buf bytes.Buffer
	if err := Dump(&buf, registry, Namespace+"_"); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, `proc_relay_bytes_total{stream="stdout"} 6`) {
		t.Errorf("dump missing bytes_total:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE proc_relay_process_starts_total counter") {
		t.Errorf("dump missing TYPE line:\n%s", out)
	}
	if strings.Contains(out, "unrelated_total") {
		t.Error("dump should not include families outside the prefix")
	}

	buf.Reset()
	if err := Dump(&buf, registry, ""); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if !strings.Contains(buf.String(), "unrelated_total 1") {
		t.Error("empty prefix should dump everything")
	}
}

func TestDumpFile_ParseText(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{Version: "test", Command: "sh"}, registry)
	c.ProcessStarted("sh", 1)
	c.ChunkRead("stderr", 3)
	c.ProcessExited("sh", 2, time.Second)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := DumpFile(path, registry, Namespace+"_"); err != nil {
		t.Fatalf("DumpFile: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open dump: %v", err)
	}
	defer f.Close()

	families, err := ParseText(f)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}

	exits, ok := families["proc_relay_process_exits_total"]
	if !ok {
		t.Fatalf("process_exits_total missing; got %d families", len(families))
	}
	m := exits.GetMetric()
	if len(m) != 1 || m[0].GetCounter().GetValue() != 1 || m[0].GetLabel()[0].GetValue() != "error" {
		t.Errorf("process_exits_total = %v", m)
	}

	bytesTotal := families["proc_relay_bytes_total"]
	if bytesTotal == nil || bytesTotal.GetMetric()[0].GetCounter().GetValue() != 3 {
		t.Errorf("bytes_total = %v", bytesTotal)
	}
}

func TestDumpFile_BadPath(t *testing.T) {
	err := DumpFile(filepath.Join(t.TempDir(), "missing", "metrics.prom"), prometheus.NewRegistry(), "")
	if err == nil {
		t.Error("expected error for a missing directory")
	}
}
