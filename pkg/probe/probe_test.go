package probe

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superbench/sbfleet/pkg/entity"
	"github.com/superbench/sbfleet/pkg/remote"
)

type fakeExecutor struct {
	stdout string
	err    error
}

var _ remote.Executor = fakeExecutor{}

func (f fakeExecutor) Exec(_ context.Context, _ entity.Host, _ string) (remote.Result, error) {
	if f.err != nil {
		return remote.Result{}, f.err
	}
	return remote.Result{Stdout: f.stdout}, nil
}

func (f fakeExecutor) Copy(_ context.Context, _ entity.Host, _, _ string, _ os.FileMode) error {
	return nil
}

func Test_BuildReportTruthTable(t *testing.T) {
	tests := []struct {
		name      string
		nodeTypes map[string]string
		devices   []string
		want      entity.AcceleratorFacts
	}{
		{
			name: "nvidia all paths char devices",
			nodeTypes: map[string]string{
				"/dev/nvidiactl":  CharDevice,
				"/dev/nvidia-uvm": CharDevice,
			},
			devices: []string{"/dev/nvidia0"},
			want:    entity.AcceleratorFacts{NvidiaPresent: true},
		},
		{
			name: "nvidia uvm missing",
			nodeTypes: map[string]string{
				"/dev/nvidiactl": CharDevice,
			},
			want: entity.AcceleratorFacts{},
		},
		{
			name: "nvidia ctl wrong node type",
			nodeTypes: map[string]string{
				"/dev/nvidiactl":  "regular file",
				"/dev/nvidia-uvm": CharDevice,
			},
			want: entity.AcceleratorFacts{},
		},
		{
			name: "amd kfd char and dri dir",
			nodeTypes: map[string]string{
				"/dev/kfd": CharDevice,
				"/dev/dri": Directory,
			},
			devices: []string{"/dev/dri/renderD128"},
			want:    entity.AcceleratorFacts{AmdPresent: true},
		},
		{
			name: "amd dri is not a directory",
			nodeTypes: map[string]string{
				"/dev/kfd": CharDevice,
				"/dev/dri": CharDevice,
			},
			want: entity.AcceleratorFacts{},
		},
		{
			name: "ascend both char devices",
			nodeTypes: map[string]string{
				"/dev/davinci0":        CharDevice,
				"/dev/davinci_manager": CharDevice,
			},
			devices: []string{"/dev/davinci0"},
			want:    entity.AcceleratorFacts{AscendPresent: true},
		},
		{
			name: "ascend manager missing",
			nodeTypes: map[string]string{
				"/dev/davinci0": CharDevice,
			},
			want: entity.AcceleratorFacts{},
		},
		{
			name:      "bare host",
			nodeTypes: map[string]string{},
			want:      entity.AcceleratorFacts{},
		},
		{
			name: "nvidia and amd together",
			nodeTypes: map[string]string{
				"/dev/nvidiactl":  CharDevice,
				"/dev/nvidia-uvm": CharDevice,
				"/dev/kfd":        CharDevice,
				"/dev/dri":        Directory,
			},
			devices: []string{"/dev/nvidia0", "/dev/dri/renderD128"},
			want:    entity.AcceleratorFacts{NvidiaPresent: true, AmdPresent: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := BuildReport(tt.nodeTypes, tt.devices)
			assert.Equal(t, tt.want, report.Facts)
		})
	}
}

func Test_BuildReportWarnsOnDriverWithoutDevices(t *testing.T) {
	report := BuildReport(map[string]string{
		"/dev/nvidiactl":  CharDevice,
		"/dev/nvidia-uvm": CharDevice,
	}, nil)
	assert.True(t, report.Facts.NvidiaPresent)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "nvidia driver found")
}

func Test_ProbeParsesRemoteOutput(t *testing.T) {
	stdout := "/dev/nvidiactl character special file\n" +
		"/dev/nvidia-uvm character special file\n" +
		"---\n" +
		"/dev/nvidia0\n"
	prober := NewDeviceProber(fakeExecutor{stdout: stdout})
	report, err := prober.Probe(context.Background(), entity.Host{Address: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, report.Facts.NvidiaPresent)
	assert.False(t, report.Facts.AmdPresent)
	assert.Empty(t, report.Warnings)
}

func Test_ProbeUnreachableHostIsAnError(t *testing.T) {
	prober := NewDeviceProber(fakeExecutor{err: fmt.Errorf("dial tcp: connection refused")})
	_, err := prober.Probe(context.Background(), entity.Host{Address: "10.0.0.9"})
	assert.Error(t, err)
}

func Test_CommandProbesAllRequiredPaths(t *testing.T) {
	command := Command()
	for _, path := range []string{
		"/dev/nvidiactl", "/dev/nvidia-uvm",
		"/dev/kfd", "/dev/dri",
		"/dev/davinci0", "/dev/davinci_manager",
	} {
		assert.Contains(t, command, path)
	}
	assert.Contains(t, command, "true")
}

func Test_Summary(t *testing.T) {
	host := entity.Host{Address: "10.0.0.1"}
	line := Summary(host, Report{Facts: entity.AcceleratorFacts{AmdPresent: true}})
	assert.Contains(t, line, "amd")

	empty := Summary(host, Report{})
	assert.Contains(t, empty, "no accelerator devices detected")
}
