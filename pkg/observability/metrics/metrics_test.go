package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/gitpkg/pkg/observability"
)

func TestMetricsCollect(t *testing.T) {
	ctx := context.Background()
	m := New()

	m.OnResolveStart(ctx, 2)
	m.OnLevel(ctx, 0, 2)
	m.OnLevel(ctx, 1, 3)
	m.OnResolveComplete(ctx, 5, 20*time.Millisecond, nil)
	m.OnResolveComplete(ctx, 0, time.Millisecond, errors.New("boom"))
	m.OnCacheHit(ctx, observability.KeyTypeWorktree)
	m.OnCacheMiss(ctx, observability.KeyTypeWorktree)
	m.OnCacheSet(ctx, observability.KeyTypeExtract, 128)
	m.OnCommand(ctx, "fetch", "/r.git")
	m.OnCommandComplete(ctx, "fetch", "/r.git", time.Millisecond, errors.New("network"))
	m.OnRetry(ctx, "fetch", "/r.git", nil)

	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			key := f.GetName()
			for _, l := range metric.GetLabel() {
				key += "," + l.GetName() + "=" + l.GetValue()
			}
			switch {
			case metric.Counter != nil:
				values[key] = metric.GetCounter().GetValue()
			case metric.Gauge != nil:
				values[key] = metric.GetGauge().GetValue()
			}
		}
	}

	tests := map[string]float64{
		"gitpkg_build_info,commit=none,version=dev": 1,
		"gitpkg_resolve_total,outcome=success":      1,
		"gitpkg_resolve_total,outcome=error":        1,
		"gitpkg_resolve_nodes":                      5,
		"gitpkg_resolve_keys_total,level=1":         3,
		"gitpkg_cache_hits_total,type=worktree":     1,
		"gitpkg_cache_misses_total,type=worktree":   1,
		"gitpkg_cache_set_bytes_total,type=extract": 128,
		"gitpkg_git_commands_total,op=fetch":        1,
		"gitpkg_git_errors_total,op=fetch":          1,
		"gitpkg_git_retries_total,op=fetch":         1,
	}
	for key, want := range tests {
		if got, ok := values[key]; !ok || got != want {
			t.Errorf("%s = %v (present %v), want %v", key, got, ok, want)
		}
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.OnCacheHit(context.Background(), observability.KeyTypeRefs)

	path := filepath.Join(t.TempDir(), "gitpkg.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `gitpkg_cache_hits_total{type="refs"} 1`) {
		t.Errorf("textfile missing counter:\n%s", data)
	}
}

func TestRegister(t *testing.T) {
	defer observability.Reset()
	m := New()
	m.Register()
	if observability.Cache() != m || observability.Git() != m || observability.Resolve() != m {
		t.Error("Register should install all hooks")
	}
}
