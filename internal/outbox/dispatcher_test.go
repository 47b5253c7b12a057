package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	initial, max := 5*time.Second, 10*time.Minute
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{7, 320 * time.Second},
		{8, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(initial, max, tt.attempt), "attempt %d", tt.attempt)
	}
}
