package container

import (
	"math"
	"testing"
)

func TestParseInspectRunning(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{
			name: "running",
			raw:  `[{"Id": "abc", "State": {"Status": "running", "Running": true}}]`,
			want: true,
		},
		{
			name: "exited",
			raw:  `[{"Id": "abc", "State": {"Status": "exited", "Running": false}}]`,
			want: false,
		},
		{
			name: "empty array",
			raw:  `[]`,
			want: false,
		},
		{
			name: "garbage",
			raw:  `not json`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseInspectRunning(tt.raw); got != tt.want {
				t.Errorf("parseInspectRunning = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStats(t *testing.T) {
	raw := `{"BlockIO":"0B / 0B","CPUPerc":"12.50%","Container":"abc","MemUsage":"256MiB / 7.662GiB","Name":"swell-task-T001"}`

	stats, err := parseStats(raw)
	if err != nil {
		t.Fatalf("parseStats failed: %v", err)
	}
	if stats.CPUPercent != 12.5 {
		t.Errorf("CPUPercent = %f, want 12.5", stats.CPUPercent)
	}
	if stats.MemoryMB != 256 {
		t.Errorf("MemoryMB = %f, want 256", stats.MemoryMB)
	}
}

func TestParseStats_Garbage(t *testing.T) {
	if _, err := parseStats(`{}`); err == nil {
		t.Error("expected error for stats without fields")
	}
}

func TestParseMemUsage(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "256MiB / 7.6GiB", want: 256},
		{in: "1.5GiB / 8GiB", want: 1536},
		{in: "512KiB / 1GiB", want: 0.5},
		{in: "100MB / 1GB", want: 100},
		{in: "", wantErr: true},
		{in: "12 parsecs", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseMemUsage(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseMemUsage(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseMemUsage(%q) failed: %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("parseMemUsage(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestContainerName(t *testing.T) {
	if got := ContainerName("T001"); got != "swell-task-T001" {
		t.Errorf("ContainerName = %q", got)
	}
}
