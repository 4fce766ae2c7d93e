package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_Idempotent(t *testing.T) {
	Register()
	Register()

	if err := prometheus.Register(StageRunsTotal); err == nil {
		t.Error("expected StageRunsTotal to be registered already")
	}
}

func TestCollectorsLint(t *testing.T) {
	for _, c := range []prometheus.Collector{StageDuration, StageRunsTotal, FallbacksTotal, IngestFailuresTotal} {
		problems, err := testutil.CollectAndLint(c)
		if err != nil {
			t.Fatalf("CollectAndLint() error = %v", err)
		}
		if len(problems) > 0 {
			t.Errorf("lint problems: %v", problems)
		}
	}
}
