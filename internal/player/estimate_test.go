package player

import (
	"testing"
	"time"
)

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		size    int64
		bitrate int64
		want    time.Duration
	}{
		{16000, 128000, time.Second},
		{4 << 30, 128000, 268435456 * time.Millisecond},
		{40 << 30, 320000, 1073741824 * time.Millisecond},
	}
	for _, tt := range tests {
		got := estimateDuration(tt.size, tt.bitrate)
		if diff := got - tt.want; diff < -time.Millisecond || diff > time.Millisecond {
			t.Errorf("estimateDuration(%d, %d) = %v, want %v", tt.size, tt.bitrate, got, tt.want)
		}
	}
}
