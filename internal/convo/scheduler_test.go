package convo

import (
	"testing"
	"time"
)

func TestSelectPollTimeout(t *testing.T) {
	tests := []struct {
		name           string
		anyAwaiting    bool
		defaultTimeout int
		window         time.Duration
		want           int
	}{
		{"idle uses full timeout", false, 25, 2500 * time.Millisecond, 25},
		{"pending rounds window up", true, 25, 2500 * time.Millisecond, 3},
		{"pending whole seconds", true, 25, 2 * time.Second, 2},
		{"pending sub-second floors at one", true, 25, 400 * time.Millisecond, 1},
		{"default caps the short timeout", true, 2, 5 * time.Second, 2},
		{"idle ignores window entirely", false, 10, time.Hour, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectPollTimeout(tt.anyAwaiting, tt.defaultTimeout, tt.window)
			if got != tt.want {
				t.Fatalf("SelectPollTimeout(%v, %d, %v) = %d, want %d",
					tt.anyAwaiting, tt.defaultTimeout, tt.window, got, tt.want)
			}
		})
	}
}
