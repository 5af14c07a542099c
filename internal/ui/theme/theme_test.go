package theme

import (
	"testing"

	"github.com/abhisek/skillprobe/internal/submission"
)

func TestBand(t *testing.T) {
	tests := []struct {
		band submission.Band
		want any
	}{
		{submission.BandGood, Success},
		{submission.BandFair, Warning},
		{submission.BandPoor, Error},
		{submission.Band("unknown"), Error},
	}
	for _, tt := range tests {
		if got := Band(tt.band).GetForeground(); got != tt.want {
			t.Errorf("Band(%q) foreground = %v, want %v", tt.band, got, tt.want)
		}
	}
}

func TestLevel(t *testing.T) {
	for level, want := range map[int]any{1: Error, 2: Error, 3: Warning, 4: Warning, 5: Success} {
		if got := Level(level).GetForeground(); got != want {
			t.Errorf("Level(%d) foreground = %v, want %v", level, got, want)
		}
	}
}
