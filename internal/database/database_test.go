package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPool_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Pool
		want Pool
	}{
		{
			name: "Zero Uses Defaults",
			want: Pool{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 5 * time.Minute},
		},
		{
			name: "Explicit Values Kept",
			in:   Pool{MaxOpenConns: 50, MaxIdleConns: 10, ConnMaxLifetime: time.Minute},
			want: Pool{MaxOpenConns: 50, MaxIdleConns: 10, ConnMaxLifetime: time.Minute},
		},
		{
			name: "Idle Capped By Open",
			in:   Pool{MaxOpenConns: 2},
			want: Pool{MaxOpenConns: 2, MaxIdleConns: 2, ConnMaxLifetime: 5 * time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.withDefaults())
		})
	}
}
