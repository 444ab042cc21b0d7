package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Families maps metric family names to parsed families.
type Families map[string]*dto.MetricFamily

// ParseText decodes a Prometheus text exposition.
func ParseText(r io.Reader) (Families, error) {
	decoder := expfmt.NewDecoder(r, expfmt.FmtText)
	families := make(Families)

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

// Scrape fetches and decodes the /metrics endpoint of a running shell.
// addr may be host:port or a full URL.
func Scrape(ctx context.Context, client *http.Client, addr string) (Families, error) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	if !strings.HasSuffix(url, "/metrics") {
		url = strings.TrimSuffix(url, "/") + "/metrics"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.FmtText))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	return ParseText(resp.Body)
}

// Value returns the sum of all samples of a counter or gauge family whose
// labels include every pair in match.
func (f Families) Value(name string, match map[string]string) (float64, bool) {
	mf, ok := f[name]
	if !ok {
		return 0, false
	}

	var total float64
	found := false
	for _, m := range mf.GetMetric() {
		if !labelsMatch(m, match) {
			continue
		}
		switch {
		case m.GetCounter() != nil:
			total += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			total += m.GetGauge().GetValue()
		case m.GetUntyped() != nil:
			total += m.GetUntyped().GetValue()
		default:
			continue
		}
		found = true
	}
	return total, found
}

// ByLabel returns counter or gauge values keyed by one label.
func (f Families) ByLabel(name, label string) map[string]float64 {
	out := make(map[string]float64)
	mf, ok := f[name]
	if !ok {
		return out
	}
	for _, m := range mf.GetMetric() {
		key := ""
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				key = lp.GetValue()
			}
		}
		switch {
		case m.GetCounter() != nil:
			out[key] += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			out[key] += m.GetGauge().GetValue()
		}
	}
	return out
}

func labelsMatch(m *dto.Metric, match map[string]string) bool {
	for name, want := range match {
		got := ""
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name {
				got = lp.GetValue()
				break
			}
		}
		if got != want {
			return false
		}
	}
	return true
}

// =============================================================================
// Status
// =============================================================================

// Status is the worker state reported by a running shell.
type Status struct {
	Version   string
	Platform  string
	Running   bool
	PID       int
	Uptime    time.Duration
	Starts    int64
	Exits     map[string]int64
	Failures  int64
	Endpoints int
	Bytes     map[string]int64
}

// StatusFrom extracts a Status from scraped families.
func StatusFrom(f Families, now time.Time) Status {
	st := Status{
		Exits: make(map[string]int64),
		Bytes: make(map[string]int64),
	}

	if mf, ok := f[MetricInfo]; ok {
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "version":
					st.Version = lp.GetValue()
				case "platform":
					st.Platform = lp.GetValue()
				}
			}
		}
	}

	if v, _ := f.Value(MetricWorkerRunning, nil); v > 0 {
		st.Running = true
	}
	if v, ok := f.Value(MetricWorkerPID, nil); ok {
		st.PID = int(v)
	}
	if v, ok := f.Value(MetricWorkerStarted, nil); ok && v > 0 && st.Running {
		st.Uptime = now.Sub(time.Unix(int64(v), 0))
	}
	if v, ok := f.Value(MetricWorkerStarts, nil); ok {
		st.Starts = int64(v)
	}
	if v, ok := f.Value(MetricSpawnFailures, nil); ok {
		st.Failures = int64(v)
	}
	if v, ok := f.Value(MetricRelayEndpoints, nil); ok {
		st.Endpoints = int(v)
	}
	for k, v := range f.ByLabel(MetricWorkerExits, "category") {
		st.Exits[k] = int64(v)
	}
	for k, v := range f.ByLabel(MetricOutputBytes, "stream") {
		st.Bytes[k] = int64(v)
	}

	return st
}

// String renders the status for the -status flag.
func (st Status) String() string {
	var b strings.Builder

	state := "idle"
	if st.Running {
		state = "running"
	}
	fmt.Fprintf(&b, "Worker:     %s\n", state)
	if st.Running {
		fmt.Fprintf(&b, "PID:        %d\n", st.PID)
		fmt.Fprintf(&b, "Uptime:     %s\n", st.Uptime.Truncate(time.Second))
	}
	if st.Version != "" {
		fmt.Fprintf(&b, "Version:    %s (%s)\n", st.Version, st.Platform)
	}
	fmt.Fprintf(&b, "Starts:     %d\n", st.Starts)
	fmt.Fprintf(&b, "Exits:      success=%d error=%d signal=%d\n",
		st.Exits[ExitSuccess], st.Exits[ExitError], st.Exits[ExitSignal])
	fmt.Fprintf(&b, "Failures:   %d\n", st.Failures)
	fmt.Fprintf(&b, "Output:     stdout=%d B stderr=%d B\n", st.Bytes["stdout"], st.Bytes["stderr"])
	fmt.Fprintf(&b, "Endpoints:  %d\n", st.Endpoints)

	return b.String()
}
