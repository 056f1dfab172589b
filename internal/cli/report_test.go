package cli

import (
	"testing"
)

func TestDisplayCount(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		verbose bool
		want    int
	}{
		{name: "Short list shown in full", total: 3, verbose: false, want: 3},
		{name: "Long list capped", total: 25, verbose: false, want: 10},
		{name: "Exactly at the cap", total: 10, verbose: false, want: 10},
		{name: "Verbose shows everything", total: 25, verbose: true, want: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReporter(&Summary{})
			r.SetVerbose(tt.verbose)
			if got := r.displayCount(tt.total); got != tt.want {
				t.Errorf("displayCount(%d) = %d, want %d", tt.total, got, tt.want)
			}
		})
	}
}
