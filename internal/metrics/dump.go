package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Dump writes every metric family gathered from g whose name starts with
// prefix, in the Prometheus text exposition format. An empty prefix writes
// everything.
func Dump(w io.Writer, g prometheus.Gatherer, prefix string) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	for _, mf := range FilterFamilies(families, prefix) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// DumpFile writes a Dump snapshot to path, replacing any existing file.
func DumpFile(path string, g prometheus.Gatherer, prefix string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics dump: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := Dump(bw, g, prefix); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write metrics dump: %w", err)
	}
	return f.Close()
}

// FilterFamilies keeps the families whose name starts with prefix.
func FilterFamilies(families []*dto.MetricFamily, prefix string) []*dto.MetricFamily {
	if prefix == "" {
		return families
	}
	out := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), prefix) {
			out = append(out, mf)
		}
	}
	return out
}

// ParseText decodes a text exposition snapshot, such as one written by
// DumpFile, into metric families keyed by name.
func ParseText(r io.Reader) (map[string]*dto.MetricFamily, error) {
	decoder := expfmt.NewDecoder(r, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)

	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		families[mf.GetName()] = &mf
	}
	return families, nil
}
