package cmd

import (
	"reflect"
	"testing"
)

func TestParsePortList(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []int
		wantErr bool
	}{
		{name: "single", in: "14002", want: []int{14002}},
		{name: "multiple with spaces", in: "14000, 14001,14002", want: []int{14000, 14001, 14002}},
		{name: "trailing comma", in: "14000,", want: []int{14000}},
		{name: "empty", in: "", wantErr: true},
		{name: "blank entries only", in: ", ,", wantErr: true},
		{name: "not a number", in: "14000,abc", wantErr: true},
		{name: "above port space", in: "70000", wantErr: true},
		{name: "zero", in: "0", wantErr: true},
		{name: "negative", in: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePortList(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parsePortList(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePortList(%q): %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parsePortList(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePortRange(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []int
		wantErr bool
	}{
		{name: "small range", in: "14000-14002", want: []int{14000, 14001, 14002}},
		{name: "single port range", in: "14002-14002", want: []int{14002}},
		{name: "spaces around dash", in: "14000 - 14001", want: []int{14000, 14001}},
		{name: "no dash", in: "14000", wantErr: true},
		{name: "reversed", in: "14005-14000", wantErr: true},
		{name: "starts at zero", in: "0-5", wantErr: true},
		{name: "beyond port space", in: "65530-70000", wantErr: true},
		{name: "garbage", in: "a-b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePortRange(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parsePortRange(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePortRange(%q): %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parsePortRange(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("1a2b3c4d5e6f"); got != "1a2b3c4d" {
		t.Errorf("shortID() = %q, want %q", got, "1a2b3c4d")
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID() = %q, want %q", got, "abc")
	}
}
