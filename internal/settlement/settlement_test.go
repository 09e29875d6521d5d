package settlement_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TECXBOY/SnapMe/internal/settlement"
)

func TestSettle(t *testing.T) {
	type args struct {
		total int64
		rate  string
	}

	type testCase struct {
		name           string
		args           args
		wantCommission int64
		wantEarnings   int64
		wantErr        bool
	}

	tests := []testCase{
		{name: "Round Down", args: args{total: 100001, rate: "15"}, wantCommission: 15000, wantEarnings: 85001},
		{name: "Exact", args: args{total: 200000, rate: "15"}, wantCommission: 30000, wantEarnings: 170000},
		{name: "Half Rounds Up", args: args{total: 10, rate: "15"}, wantCommission: 2, wantEarnings: 8},
		{name: "Just Under Half", args: args{total: 3, rate: "15"}, wantCommission: 0, wantEarnings: 3},
		{name: "Fractional Rate", args: args{total: 1000, rate: "12.5"}, wantCommission: 125, wantEarnings: 875},
		{name: "Zero Rate", args: args{total: 5000, rate: "0"}, wantCommission: 0, wantEarnings: 5000},
		{name: "Full Rate", args: args{total: 5000, rate: "100"}, wantCommission: 5000, wantEarnings: 0},
		{name: "Zero Total", args: args{total: 0, rate: "15"}, wantCommission: 0, wantEarnings: 0},
		{name: "Negative Total", args: args{total: -1, rate: "15"}, wantErr: true},
		{name: "Rate Too High", args: args{total: 100, rate: "100.01"}, wantErr: true},
		{name: "Negative Rate", args: args{total: 100, rate: "-1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := settlement.Settle(tt.args.total, decimal.RequireFromString(tt.args.rate))

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantCommission, got.Commission)
			assert.Equal(t, tt.wantEarnings, got.Earnings)
			assert.Equal(t, tt.args.total, got.Total)
		})
	}
}

func TestSettle_AlwaysReconciles(t *testing.T) {
	rates := []string{"0", "7.5", "15", "33.333", "99.99"}

	for _, r := range rates {
		rate := decimal.RequireFromString(r)

		for total := int64(0); total < 5000; total += 7 {
			got, err := settlement.Settle(total, rate)
			require.NoError(t, err)
			assert.Equal(t, total, got.Commission+got.Earnings, "rate %s total %d", r, total)
			assert.GreaterOrEqual(t, got.Earnings, int64(0))
		}
	}
}
