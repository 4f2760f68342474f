package tiers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stackvista/es-tier-migrator/internal/config"
	"github.com/stackvista/es-tier-migrator/internal/tiering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCluster serves the handful of endpoints the commands use and records
// every mutating request as "METHOD path body"
type fakeCluster struct {
	mu       sync.Mutex
	indices  []string
	tags     map[string]string
	failPath string
	requests []string
}

func (f *fakeCluster) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	var body bytes.Buffer
	_, _ = body.ReadFrom(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method != http.MethodGet {
		f.requests = append(f.requests, strings.TrimSpace(fmt.Sprintf("%s %s %s", r.Method, r.URL.Path, body.String())))
	}
	if f.failPath != "" && r.URL.Path == f.failPath {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/_stats":
		stats := map[string]interface{}{}
		for _, index := range f.indices {
			stats[index] = map[string]interface{}{}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"indices": stats})
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/_settings"):
		prefix := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "*/_settings")
		settings := map[string]interface{}{}
		for _, index := range f.indices {
			if !strings.HasPrefix(index, prefix) {
				continue
			}
			s := map[string]interface{}{"index.number_of_replicas": "1"}
			if tag, ok := f.tags[index]; ok {
				s["index.routing.allocation.require.tag"] = tag
			}
			settings[index] = map[string]interface{}{"settings": s}
		}
		_ = json.NewEncoder(w).Encode(settings)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/_optimize"):
		_, _ = w.Write([]byte(`{"_shards":{"total":2,"successful":2,"failed":0}}`))
	default:
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	}
}

func (f *fakeCluster) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newFakeCluster(t *testing.T, n int) (*fakeCluster, *config.Context) {
	t.Helper()
	cluster := &fakeCluster{tags: map[string]string{}}
	for i := 0; i < n; i++ {
		cluster.indices = append(cluster.indices, fmt.Sprintf("logstash-2014.01.%02d", i+1))
	}
	cluster.indices = append(cluster.indices, ".kibana")

	server := httptest.NewServer(http.HandlerFunc(cluster.handler))
	t.Cleanup(server.Close)

	cliCtx := config.NewContext()
	cliCtx.Config.URL = server.URL
	cliCtx.Config.Quiet = true
	cliCtx.Config.OutputFormat = "table"
	return cluster, cliCtx
}

func TestCommands(t *testing.T) {
	cmds := Commands(config.NewContext())

	var names []string
	for _, cmd := range cmds {
		names = append(names, cmd.Use)
		assert.NotNil(t, cmd.Run)
		assert.NotEmpty(t, cmd.Short)
	}
	assert.Equal(t, []string{"migrate", "plan", "list-indices"}, names)
}

func TestRunMigrate_TwelveIndices(t *testing.T) {
	cluster, cliCtx := newFakeCluster(t, 12)
	var out bytes.Buffer

	err := runMigrate(context.Background(), cliCtx, &out)

	require.NoError(t, err)
	requests := cluster.mutations()
	require.Len(t, requests, 1+6*2+3+1)
	assert.Equal(t, `PUT /_cluster/settings {"transient":{"cluster.routing.allocation.disable_allocation":"true"}}`, requests[0])
	assert.Equal(t, `PUT /logstash-2014.01.04/_settings {"index":{"number_of_replicas":1},"index.routing.allocation.require.tag":"mid"}`, requests[1])
	assert.Equal(t, "POST /logstash-2014.01.04/_optimize", requests[2])
	assert.Equal(t, `PUT /logstash-2014.01.01/_settings {"index":{"number_of_replicas":1},"index.routing.allocation.require.tag":"archive"}`, requests[13])
	assert.Equal(t, `PUT /_cluster/settings {"transient":{"cluster.routing.allocation.disable_allocation":"false"}}`, requests[16])

	assert.Contains(t, out.String(), "CALL")
	assert.Contains(t, out.String(), "logstash-2014.01.09")
	assert.NotContains(t, out.String(), "logstash-2014.01.10")
	assert.NotContains(t, out.String(), "failed")
}

func TestRunMigrate_NotEnoughIndices(t *testing.T) {
	cluster, cliCtx := newFakeCluster(t, 4)
	var out bytes.Buffer

	err := runMigrate(context.Background(), cliCtx, &out)

	require.NoError(t, err)
	assert.Empty(t, cluster.mutations())
	assert.Contains(t, out.String(), "Nothing to migrate")
}

func TestRunMigrate_IndexFailure(t *testing.T) {
	cluster, cliCtx := newFakeCluster(t, 12)
	cluster.failPath = "/logstash-2014.01.05/_settings"
	var out bytes.Buffer

	err := runMigrate(context.Background(), cliCtx, &out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 index(es) failed to migrate: logstash-2014.01.05")
	assert.Contains(t, out.String(), "failed (retryable)")

	requests := cluster.mutations()
	assert.Len(t, requests, 17, "the pass continues after a failed index")
	assert.Contains(t, requests[len(requests)-1], `"false"`, "allocation is re-enabled last")
}

func TestRunMigrate_JSONOutput(t *testing.T) {
	_, cliCtx := newFakeCluster(t, 5)
	cliCtx.Config.OutputFormat = "json"
	var out bytes.Buffer

	err := runMigrate(context.Background(), cliCtx, &out)
	require.NoError(t, err)

	var report tiering.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.False(t, report.Skipped)
	assert.Equal(t, []string{"logstash-2014.01.01", "logstash-2014.01.02"}, report.Plan.Mid)
	assert.Empty(t, report.Plan.Archive)
	// disable + 2*(settings+optimize) + enable
	assert.Len(t, report.Results, 6)
}

func TestRunMigrate_ClusterUnreachable(t *testing.T) {
	cliCtx := config.NewContext()
	cliCtx.Config.URL = "http://127.0.0.1:1"
	cliCtx.Config.Quiet = true

	err := runMigrate(context.Background(), cliCtx, &bytes.Buffer{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list indices")
}

func TestRunMigrate_InvalidURL(t *testing.T) {
	cliCtx := config.NewContext()
	cliCtx.Config.URL = "not a url"

	err := runMigrate(context.Background(), cliCtx, &bytes.Buffer{})

	require.Error(t, err)
}

func TestRunPlan(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		format   string
		contains []string
	}{
		{
			name:     "table",
			n:        12,
			format:   "table",
			contains: []string{"INDEX", "logstash-2014.01.01  archive  archive", "logstash-2014.01.04  mid      mid", "logstash-2014.01.12  hot      -"},
		},
		{
			name:     "json",
			n:        12,
			format:   "json",
			contains: []string{`"mid": [`, `"logstash-2014.01.09"`},
		},
		{
			name:     "not enough indices keeps everything hot",
			n:        3,
			format:   "table",
			contains: []string{"logstash-2014.01.03  hot"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cluster, cliCtx := newFakeCluster(t, tt.n)
			cliCtx.Config.OutputFormat = tt.format
			var out bytes.Buffer

			err := runPlan(context.Background(), cliCtx, &out)

			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out.String(), s)
			}
			assert.NotContains(t, out.String(), ".kibana")
			assert.Empty(t, cluster.mutations(), "plan must not change the cluster")
		})
	}
}

func TestRunListIndices(t *testing.T) {
	cluster, cliCtx := newFakeCluster(t, 12)
	cluster.tags["logstash-2014.01.01"] = "archive"
	cliCtx.Config.OutputFormat = "json"
	var out bytes.Buffer

	err := runListIndices(context.Background(), cliCtx, &out)
	require.NoError(t, err)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 12)

	byIndex := map[string]map[string]string{}
	for _, row := range rows {
		byIndex[row["index"]] = row
	}
	assert.Equal(t, "archive", byIndex["logstash-2014.01.01"]["tag"])
	assert.Equal(t, "archive", byIndex["logstash-2014.01.01"]["planned"])
	assert.Equal(t, "-", byIndex["logstash-2014.01.05"]["tag"])
	assert.Equal(t, "mid", byIndex["logstash-2014.01.05"]["planned"])
	assert.Equal(t, "hot", byIndex["logstash-2014.01.12"]["planned"])
	assert.Equal(t, "1", byIndex["logstash-2014.01.12"]["replicas"])
	assert.Empty(t, cluster.mutations())
}

func TestMigratorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tiering.Optimize = config.OptimizeNone

	mc := migratorConfig(cfg)

	assert.False(t, mc.Optimize)
	assert.Equal(t, 4, mc.MidTierAge)
	assert.Equal(t, 10, mc.ArchiveTierAge)
	assert.Equal(t, "logstash-", mc.IndexPrefix)
	assert.Equal(t, cfg.Elasticsearch.RequestTimeout, mc.ReleaseTimeout)

	client, err := newESClient(cfg.Elasticsearch.URL, cfg)
	require.NoError(t, err)
	assert.NotNil(t, client)
}
