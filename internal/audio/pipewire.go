package audio

import (
	"fmt"
	"os/exec"
	"strings"
)

// PipeWire queries the PipeWire graph through pw-link.
type PipeWire struct{}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{}
}

// ListPorts returns every input and output port.
func (pw *PipeWire) ListPorts() ([]string, error) {
	return pw.links("-io")
}

// ListSources returns the output ports a meter can capture from.
func (pw *PipeWire) ListSources() ([]string, error) {
	return pw.links("-o")
}

func (pw *PipeWire) links(flag string) ([]string, error) {
	output, err := exec.Command("pw-link", flag).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePorts(string(output)), nil
}

// parsePorts extracts port names from pw-link output.
func parsePorts(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Input ports:") || strings.HasPrefix(line, "Output ports:") {
			continue
		}
		ports = append(ports, line)
	}
	return ports
}

// validateSourceIn checks that source exists exactly once among ports. An
// empty source means the default input and is always valid.
func validateSourceIn(source string, ports []string) error {
	if source == "" {
		return nil
	}
	duplicates := findPortDuplicatesInList(source, ports)
	switch {
	case len(duplicates) == 0:
		return fmt.Errorf("port not found: %s", source)
	case len(duplicates) > 1:
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", source, duplicates)
	}
	return nil
}

// findPortDuplicatesInList finds all ports with exactly the same name
func findPortDuplicatesInList(portName string, allPorts []string) []string {
	var duplicates []string
	for _, port := range allPorts {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}
	return duplicates
}

// nodeName turns a port name such as "alsa_input.usb:capture_FL" into the
// node pw-record targets.
func nodeName(source string) string {
	if i := strings.LastIndex(source, ":"); i > 0 {
		return source[:i]
	}
	return source
}
