package audio

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// PipeWire wraps the pw-link tool used to inspect the PipeWire graph
type PipeWire struct {
	// linkCommand is the pw-link binary; tests replace it
	linkCommand string
}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{linkCommand: "pw-link"}
}

// ListPorts returns the output ports of the graph. Capture sources such as
// microphones show up here as "<node>:capture_<channel>".
func (pw *PipeWire) ListPorts(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, pw.linkCommand, "-o")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePortList(string(output)), nil
}

// CaptureSources groups the capture ports of the graph by node
func (pw *PipeWire) CaptureSources(ctx context.Context) ([]CaptureSource, error) {
	ports, err := pw.ListPorts(ctx)
	if err != nil {
		return nil, err
	}
	return captureSources(ports), nil
}

// CaptureSource is a node exposing capture ports
type CaptureSource struct {
	Node     string
	Channels int
}

// parsePortList returns one entry per port line of pw-link output
func parsePortList(output string) []string {
	lines := strings.Split(output, "\n")
	var ports []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}

	return ports
}

// captureSources keeps the nodes that expose capture_* ports, in name order.
// A node listed twice (two clients with the same name) is reported once.
func captureSources(ports []string) []CaptureSource {
	channels := make(map[string]int)
	for _, port := range ports {
		node, name, ok := strings.Cut(port, ":")
		if !ok || node == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(name), "capture_") {
			continue
		}
		channels[node]++
	}

	sources := make([]CaptureSource, 0, len(channels))
	for node, n := range channels {
		sources = append(sources, CaptureSource{Node: node, Channels: n})
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Node < sources[j].Node
	})
	return sources
}

// isInputNode reports whether a node looks like a hardware or virtual input
// rather than an application's monitor ports.
func isInputNode(node string) bool {
	lower := strings.ToLower(node)
	for _, prefix := range []string{"alsa_input", "bluez_input", "system"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
