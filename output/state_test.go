package output

import "testing"

func TestOutputStateWidthHeight(t *testing.T) {
	tests := []struct {
		name       string
		state      OutputState
		wantWidth  int32
		wantHeight int32
	}{
		{
			name:  "no mode",
			state: OutputState{Scale: 1.0},
		},
		{
			name: "normal transform unit scale",
			state: OutputState{
				Mode:  Mode{Kind: ModeCustom, Width: 1920, Height: 1080},
				Scale: 1.0,
			},
			wantWidth:  1920,
			wantHeight: 1080,
		},
		{
			name: "90 degree rotation swaps dimensions",
			state: OutputState{
				Mode:      Mode{Kind: ModeCustom, Width: 1920, Height: 1080},
				Scale:     1.0,
				Transform: 1, // geom.Transform90
			},
			wantWidth:  1080,
			wantHeight: 1920,
		},
		{
			name: "integer scale divides",
			state: OutputState{
				Mode:  Mode{Kind: ModeCustom, Width: 3840, Height: 2160},
				Scale: 2.0,
			},
			wantWidth:  1920,
			wantHeight: 1080,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Width(); got != tt.wantWidth {
				t.Errorf("Width() = %d, want %d", got, tt.wantWidth)
			}
			if got := tt.state.Height(); got != tt.wantHeight {
				t.Errorf("Height() = %d, want %d", got, tt.wantHeight)
			}
		})
	}
}

func TestNeedsModeset(t *testing.T) {
	base := OutputState{State: StateEnabled, Mode: Mode{Kind: ModeCustom, Width: 1920, Height: 1080}, Scale: 1.0}

	tests := []struct {
		name string
		next OutputState
		want bool
	}{
		{"identical", base, false},
		{"position only", func() OutputState { s := base; s.Pos.X = 100; return s }(), false},
		{"scale only", func() OutputState { s := base; s.Scale = 2.0; return s }(), false},
		{"mode change", func() OutputState { s := base; s.Mode.Width = 1280; return s }(), true},
		{"disable", func() OutputState { s := base; s.State = StateDisabledSoft; return s }(), true},
		{"adaptive sync toggle", func() OutputState { s := base; s.AdaptiveSync = true; return s }(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.NeedsModeset(tt.next); got != tt.want {
				t.Errorf("NeedsModeset() = %v, want %v", got, tt.want)
			}
		})
	}
}
