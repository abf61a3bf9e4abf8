package format

import "testing"

func TestHMS(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{name: "zero", seconds: 0, want: "0:00:00.000"},
		{name: "negative clamps", seconds: -3, want: "0:00:00.000"},
		{name: "two seconds", seconds: 2, want: "0:00:02.000"},
		{name: "fractional", seconds: 61.5, want: "0:01:01.500"},
		{name: "hours", seconds: 3723.25, want: "1:02:03.250"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HMS(tt.seconds); got != tt.want {
				t.Errorf("HMS(%v) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}
