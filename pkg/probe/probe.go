// Package probe classifies a host's accelerator hardware by inspecting its
// device nodes over the remote executor.
package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/superbench/sbfleet/pkg/entity"
	sberrors "github.com/superbench/sbfleet/pkg/errors"
	"github.com/superbench/sbfleet/pkg/remote"
)

// NodeType values as printed by stat -c %F.
const (
	CharDevice = "character special file"
	Directory  = "directory"
)

type requiredPath struct {
	path     string
	nodeType string
}

type vendorCheck struct {
	vendor string
	paths  []requiredPath
	// deviceGlob enumerates the actual compute devices; a matching driver
	// without any is worth a warning (but still counts as present).
	deviceGlob string
}

var vendorChecks = []vendorCheck{
	{
		vendor: "nvidia",
		paths: []requiredPath{
			{path: "/dev/nvidiactl", nodeType: CharDevice},
			{path: "/dev/nvidia-uvm", nodeType: CharDevice},
		},
		deviceGlob: "/dev/nvidia[0-9]*",
	},
	{
		vendor: "amd",
		paths: []requiredPath{
			{path: "/dev/kfd", nodeType: CharDevice},
			{path: "/dev/dri", nodeType: Directory},
		},
		deviceGlob: "/dev/dri/renderD*",
	},
	{
		vendor: "ascend",
		paths: []requiredPath{
			{path: "/dev/davinci0", nodeType: CharDevice},
			{path: "/dev/davinci_manager", nodeType: CharDevice},
		},
		deviceGlob: "/dev/davinci[0-9]*",
	},
}

const sectionMarker = "---"

// Command builds the single shell probe run on each host: node types for
// every required path, then the visible compute device files. Always exits
// zero; absence of hardware is a normal outcome, not a failure.
func Command() string {
	paths := []string{}
	globs := []string{}
	for _, check := range vendorChecks {
		for _, p := range check.paths {
			paths = append(paths, p.path)
		}
		globs = append(globs, check.deviceGlob)
	}
	return fmt.Sprintf(
		"stat -c '%%n %%F' %s 2>/dev/null; echo %s; ls -d %s 2>/dev/null; true",
		strings.Join(paths, " "), sectionMarker, strings.Join(globs, " "),
	)
}

// Report is the outcome of probing one host.
type Report struct {
	Facts    entity.AcceleratorFacts
	Warnings []string
}

type DeviceProber struct {
	executor remote.Executor
}

func NewDeviceProber(executor remote.Executor) DeviceProber {
	return DeviceProber{executor: executor}
}

// Probe inspects one host's device nodes. A transport failure is returned
// as an error (the host is unreachable, not accelerator-free).
func (d DeviceProber) Probe(ctx context.Context, host entity.Host) (Report, error) {
	res, err := d.executor.Exec(ctx, host, Command())
	if err != nil {
		return Report{}, sberrors.WrapAndTrace(err, "probing devices on", host.ID())
	}
	if !res.OK() {
		return Report{}, sberrors.WrapAndTrace(fmt.Errorf("device probe exited %d on %s: %s", res.ExitCode, host.ID(), res.Stderr))
	}
	nodeTypes, deviceFiles := parseProbeOutput(res.Stdout)
	return BuildReport(nodeTypes, deviceFiles), nil
}

func parseProbeOutput(stdout string) (map[string]string, []string) {
	nodeTypes := map[string]string{}
	deviceFiles := []string{}
	inDevices := false
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == sectionMarker {
			inDevices = true
			continue
		}
		if inDevices {
			deviceFiles = append(deviceFiles, line)
			continue
		}
		path, nodeType, found := strings.Cut(line, " ")
		if found {
			nodeTypes[path] = nodeType
		}
	}
	return nodeTypes, deviceFiles
}

// BuildReport decides vendor presence from probed node types: a vendor is
// present iff every one of its required paths exists with the required node
// type. Missing or mismatched paths mean absent, never an error.
func BuildReport(nodeTypes map[string]string, deviceFiles []string) Report {
	report := Report{}
	for _, check := range vendorChecks {
		present := true
		for _, p := range check.paths {
			if nodeTypes[p.path] != p.nodeType {
				present = false
				break
			}
		}
		if !present {
			continue
		}
		setVendor(&report.Facts, check.vendor)
		if !anyMatchesGlobDir(deviceFiles, check.deviceGlob) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s driver found but no compute devices detected", check.vendor))
		}
	}
	return report
}

func setVendor(facts *entity.AcceleratorFacts, vendor string) {
	switch vendor {
	case "nvidia":
		facts.NvidiaPresent = true
	case "amd":
		facts.AmdPresent = true
	case "ascend":
		facts.AscendPresent = true
	}
}

func anyMatchesGlobDir(deviceFiles []string, glob string) bool {
	prefix := strings.Split(glob, "[")[0]
	prefix = strings.Split(prefix, "*")[0]
	for _, file := range deviceFiles {
		if strings.HasPrefix(file, prefix) {
			return true
		}
	}
	return false
}

// Summary renders the human-readable per-host detection line.
func Summary(host entity.Host, report Report) string {
	vendors := report.Facts.Vendors()
	line := fmt.Sprintf("%s: no accelerator devices detected", host.ID())
	if len(vendors) > 0 {
		line = fmt.Sprintf("%s: detected %s", host.ID(), strings.Join(vendors, ", "))
	}
	for _, warning := range report.Warnings {
		line += fmt.Sprintf(" (%s)", warning)
	}
	return line
}
