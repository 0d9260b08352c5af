package service

import (
	"context"
	"testing"
	"time"

	"github.com/dushixiang/strike/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_IsMarketOpen(t *testing.T) {
	s, err := NewScheduler(&config.Config{}, nil, nil, nil, testLogger())
	require.NoError(t, err)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	cases := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"before open", time.Date(2026, 3, 2, 9, 29, 0, 0, ny), false},
		{"at open", time.Date(2026, 3, 2, 9, 30, 0, 0, ny), true},
		{"last minute", time.Date(2026, 3, 2, 15, 59, 59, 0, ny), true},
		{"at close", time.Date(2026, 3, 2, 16, 0, 0, 0, ny), false},
		{"saturday", time.Date(2026, 3, 7, 11, 0, 0, 0, ny), false},
		{"sunday", time.Date(2026, 3, 8, 11, 0, 0, 0, ny), false},
		// 14:45 UTC = 09:45 EST
		{"utc input", time.Date(2026, 3, 2, 14, 45, 0, 0, time.UTC), true},
		// 13:45 UTC = 09:45 EDT，夏令时
		{"utc input during dst", time.Date(2026, 7, 6, 13, 45, 0, 0, time.UTC), true},
		{"utc evening is closed", time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.open, s.IsMarketOpen(tc.at))
		})
	}
}

func TestNewScheduler_RejectsBadConfig(t *testing.T) {
	_, err := NewScheduler(&config.Config{Scheduler: config.SchedulerConf{Timezone: "Mars/Olympus"}}, nil, nil, nil, testLogger())
	assert.Error(t, err)

	_, err = NewScheduler(&config.Config{Scheduler: config.SchedulerConf{MarketOpen: "9h30"}}, nil, nil, nil, testLogger())
	assert.Error(t, err)

	_, err = NewScheduler(&config.Config{Scheduler: config.SchedulerConf{MarketOpen: "16:00", MarketClose: "09:30"}}, nil, nil, nil, testLogger())
	assert.Error(t, err)
}

func TestScheduler_RunTickRecordsEquity(t *testing.T) {
	f := newManagerFixture(t)
	equity := NewEquityService(f.db, f.manager, testLogger())
	s, err := NewScheduler(&config.Config{}, f.manager, nil, equity, testLogger())
	require.NoError(t, err)

	f.openPosition(f.contract("NVDA", 30), 1, "2.00", nil)
	report, err := s.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)

	history, err := equity.History(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, 1, s.Status().Ticks)
}
