package db

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPoolStats_JSONShape(t *testing.T) {
	stats := &PoolStats{
		TotalConns:      10,
		IdleConns:       5,
		AcquiredConns:   5,
		MaxConns:        20,
		AcquireCount:    100,
		AcquireDuration: "1.5s",
		Healthy:         true,
	}

	b, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(b)

	for _, key := range []string{
		`"total_conns":10`,
		`"idle_conns":5`,
		`"acquired_conns":5`,
		`"max_conns":20`,
		`"acquire_count":100`,
		`"acquire_duration":"1.5s"`,
		`"healthy":true`,
	} {
		if !strings.Contains(body, key) {
			t.Errorf("expected %s in %s", key, body)
		}
	}
}

func TestPoolStats_ZeroValueIsUnhealthy(t *testing.T) {
	// GetPoolStats marks a drained pool unhealthy; the zero value mirrors
	// that so an unpopulated snapshot never reads as healthy.
	var stats PoolStats
	if stats.Healthy {
		t.Error("zero-value PoolStats must not report healthy")
	}
}
