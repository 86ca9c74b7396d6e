package docker

import (
	"sort"
	"testing"

	"github.com/docker/go-connections/nat"
)

func TestFlattenPorts(t *testing.T) {
	ports := nat.PortMap{
		"14002/tcp": []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: "14002"},
		},
		"28967/tcp": []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: "28967"},
			{HostIP: "::", HostPort: "28967"},
		},
		"28967/udp": []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: "28967"},
		},
		// Exposed but unpublished ports carry no host port.
		"5999/tcp": nil,
	}

	got := flattenPorts(ports)
	if len(got) != 4 {
		t.Fatalf("flattenPorts() returned %d bindings, want 4", len(got))
	}

	sort.Slice(got, func(i, j int) bool {
		if got[i].ContainerPort != got[j].ContainerPort {
			return got[i].ContainerPort < got[j].ContainerPort
		}
		return got[i].Proto < got[j].Proto
	})

	if got[0].ContainerPort != 14002 || got[0].HostPort != 14002 || got[0].Proto != "tcp" {
		t.Errorf("first binding = %+v, want 14002/tcp -> 14002", got[0])
	}
	if got[3].Proto != "udp" {
		t.Errorf("last binding proto = %q, want udp", got[3].Proto)
	}
}

func TestFlattenPortsSkipsUnparseableHostPorts(t *testing.T) {
	ports := nat.PortMap{
		"14002/tcp": []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: ""},
			{HostIP: "0.0.0.0", HostPort: "bogus"},
		},
	}

	if got := flattenPorts(ports); len(got) != 0 {
		t.Errorf("flattenPorts() = %v, want no bindings", got)
	}
}

func TestPrimaryName(t *testing.T) {
	if got := primaryName([]string{"/storagenode-1", "/alias"}); got != "storagenode-1" {
		t.Errorf("primaryName() = %q, want storagenode-1", got)
	}
	if got := primaryName(nil); got != "" {
		t.Errorf("primaryName(nil) = %q, want empty", got)
	}
}

func TestEnvValue(t *testing.T) {
	detail := &ContainerDetail{
		Env: []string{
			"PATH=/usr/bin",
			"CONSOLE_ADDRESS=:14002",
			"ADDRESS=node.example.com:28967",
			"EMPTY=",
		},
	}

	tests := []struct {
		key   string
		want  string
		found bool
	}{
		{"CONSOLE_ADDRESS", ":14002", true},
		{"ADDRESS", "node.example.com:28967", true},
		{"EMPTY", "", true},
		{"MISSING", "", false},
		// Suffix of a longer name must not match.
		{"DRESS", "", false},
	}

	for _, tt := range tests {
		got, found := detail.EnvValue(tt.key)
		if got != tt.want || found != tt.found {
			t.Errorf("EnvValue(%q) = (%q, %v), want (%q, %v)", tt.key, got, found, tt.want, tt.found)
		}
	}
}
