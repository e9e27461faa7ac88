package bootstrap

import (
	"path"

	"github.com/alessio/shellescape"

	"github.com/superbench/sbfleet/pkg/entity"
)

// Accelerator-specific docker run arguments. Flags are additive across
// vendors; a host with no accelerators gets none of them.
var (
	nvidiaArgs = []string{"--gpus", "all"}
	amdArgs    = []string{
		"--security-opt", "seccomp=unconfined",
		"--group-add", "video",
		"--device=/dev/kfd",
		"--device=/dev/dri",
		"--cap-add=SYS_PTRACE",
		"--shm-size=16g",
	}
	ascendArgs = []string{"-e", "ASCEND_VISIBLE_DEVICES=0-7"}
)

// DeviceFlags computes the accelerator arguments for one host from its
// probed facts. Pure function: no IO, no host state.
func DeviceFlags(facts entity.AcceleratorFacts) []string {
	args := []string{}
	if facts.NvidiaPresent {
		args = append(args, nvidiaArgs...)
	}
	if facts.AmdPresent {
		args = append(args, amdArgs...)
	}
	if facts.AscendPresent {
		args = append(args, ascendArgs...)
	}
	return args
}

// BuildContainerSpec derives the full launch parameter set for one host's
// workspace container. home is the resolved remote home directory.
func BuildContainerSpec(containerName string, image string, home string, facts entity.AcceleratorFacts) entity.ContainerSpec {
	runArgs := []string{
		"--privileged",
		"--net=host",
		"--ipc=host",
		"-v", shellescape.Quote(path.Join(home, WorkspaceDir)) + ":/root/" + WorkspaceDir,
	}
	return entity.ContainerSpec{
		Name:       containerName,
		Image:      image,
		DeviceArgs: DeviceFlags(facts),
		RunArgs:    runArgs,
	}
}
