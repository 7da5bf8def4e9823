package monitoring

import (
	"testing"
)

func TestCheckHealthAggregation(t *testing.T) {
	hc := NewHealthChecker("paymaster", "1.0.0")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })

	status := hc.CheckHealth()
	if status.Status != StatusHealthy {
		t.Errorf("status = %s, want healthy", status.Status)
	}

	hc.AddCheck("slow", func() CheckResult { return CheckResult{Status: StatusDegraded} })
	if got := hc.CheckHealth().Status; got != StatusDegraded {
		t.Errorf("status = %s, want degraded", got)
	}

	hc.AddCheck("down", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })
	if got := hc.CheckHealth().Status; got != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", got)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	check := ConfigurationHealthCheck(map[string]string{"DATABASE_URL": "postgres://x"})
	if got := check().Status; got != StatusHealthy {
		t.Errorf("status = %s, want healthy", got)
	}

	check = ConfigurationHealthCheck(map[string]string{"KAFKA_BROKERS": ""})
	if got := check().Status; got != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", got)
	}
}
