package sysmetrics_test

import (
	"testing"

	"datanode/internal/sysmetrics"
)

func TestCPUPercentNonNegative(t *testing.T) {
	if pct := sysmetrics.CPUPercent(); pct < 0 {
		t.Errorf("expected non-negative CPU percent, got %f", pct)
	}
}

func TestMemoryInuseReportsNonZero(t *testing.T) {
	if mem := sysmetrics.MemoryInuse(); mem <= 0 {
		t.Errorf("expected positive memory in use, got %d", mem)
	}
}
