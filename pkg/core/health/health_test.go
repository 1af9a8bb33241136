package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func fixed(name string, s Status) Checker {
	return Func(name, func(context.Context) CheckResult {
		return CheckResult{Status: s}
	})
}

func TestRegistry_Aggregate(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"degraded wins over healthy", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unknown wins over degraded", []Status{StatusDegraded, StatusUnknown}, StatusUnknown},
		{"unhealthy wins", []Status{StatusUnhealthy, StatusDegraded, StatusHealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry("villain", "1.0.0")
			for i, s := range tt.statuses {
				r.Register(fixed(string(rune('a'+i)), s))
			}
			report := r.Check(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Equal(t, tt.want == StatusHealthy, report.Healthy())
		})
	}
}

func TestRegistry_ResultsSortedAndStamped(t *testing.T) {
	r := NewRegistry("villain", "1.0.0")
	r.Register(fixed("requests", StatusHealthy), fixed("datastore", StatusHealthy))
	r.Register(Func("blank", func(context.Context) CheckResult { return CheckResult{} }))

	report := r.Check(context.Background())
	require.Len(t, report.Checks, 3)
	assert.Equal(t, []string{"blank", "datastore", "requests"}, r.Names())
	for i, name := range r.Names() {
		assert.Equal(t, name, report.Checks[i].Name, "name filled from the checker")
		assert.False(t, report.Checks[i].Timestamp.IsZero())
	}
	assert.Equal(t, StatusUnknown, report.Checks[0].Status, "empty status becomes unknown")
	assert.Equal(t, "villain", report.Service)
	assert.True(t, strings.HasPrefix(report.String(), "villain 1.0.0: unknown"))
}

func TestRegistry_ReplaceAndUnregister(t *testing.T) {
	r := NewRegistry("villain", "1.0.0")
	r.Register(fixed("datastore", StatusUnhealthy))
	r.Register(fixed("datastore", StatusHealthy))
	assert.Equal(t, StatusHealthy, r.Check(context.Background()).Status)

	r.Unregister("datastore")
	assert.Empty(t, r.Check(context.Background()).Checks)
}

func TestRegistry_ChecksRunConcurrently(t *testing.T) {
	r := NewRegistry("villain", "1.0.0")
	for i := 0; i < 5; i++ {
		r.Register(Func(string(rune('a'+i)), func(context.Context) CheckResult {
			time.Sleep(20 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		}))
	}

	start := time.Now()
	report := r.Check(context.Background())
	assert.Less(t, time.Since(start), 90*time.Millisecond)
	assert.Len(t, report.Checks, 5)
}

func TestRegistry_PanickingCheck(t *testing.T) {
	r := NewRegistry("villain", "1.0.0")
	r.Register(Func("broken", func(context.Context) CheckResult { panic("boom") }))

	report := r.Check(context.Background())
	require.Len(t, report.Checks, 1)
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "broken", report.Checks[0].Name)
	assert.Contains(t, report.Checks[0].Message, "boom")
}

func TestReport_Find(t *testing.T) {
	r := NewRegistry("villain", "1.0.0")
	r.Register(fixed("requests", StatusDegraded))
	report := r.Check(context.Background())

	res, ok := report.Find("requests")
	require.True(t, ok)
	assert.Equal(t, StatusDegraded, res.Status)
	_, ok = report.Find("mail")
	assert.False(t, ok)
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck("datastore", pingFunc(func(context.Context) error { return nil }), time.Second)
	assert.Equal(t, "datastore", ok.Name())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	failing := PingCheck("datastore", pingFunc(func(context.Context) error { return errors.New("closed") }), time.Second)
	res := failing.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "closed", res.Message)
}

func TestPingCheck_Timeout(t *testing.T) {
	slow := PingCheck("slow", pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), 10*time.Millisecond)

	res := slow.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Message, "deadline")
}

func TestErrorCheck(t *testing.T) {
	r := NewRegistry("villain", "1.0.0")
	r.Register(ErrorCheck("requests", StatusDegraded, func(context.Context) error {
		return errors.New("no request table")
	}))
	r.Register(AlwaysHealthy("alive"))

	report := r.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.False(t, report.Healthy())
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "alive", report.Checks[0].Name)
	assert.Equal(t, "no request table", report.Checks[1].Message)
}
