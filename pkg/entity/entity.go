// Package entity holds the core types threaded between bootstrap stages.
package entity

import "fmt"

// Host identifies one machine in the fleet. The list is loaded once from the
// inventory and never mutated afterwards.
type Host struct {
	Address string `mapstructure:"address" yaml:"address"`
	User    string `mapstructure:"user" yaml:"user"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Become  bool   `mapstructure:"become" yaml:"become"`
}

func (h Host) ID() string {
	if h.Port == 0 || h.Port == 22 {
		return h.Address
	}
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

func (h Host) SSHUser() string {
	if h.User == "" {
		return "root"
	}
	return h.User
}

func (h Host) SSHPort() int {
	if h.Port == 0 {
		return 22
	}
	return h.Port
}

// AcceleratorFacts is one host's device probe result. It is scoped to the
// host it was probed on and passed by value, never shared across hosts.
type AcceleratorFacts struct {
	NvidiaPresent bool
	AmdPresent    bool
	AscendPresent bool
}

func (f AcceleratorFacts) Any() bool {
	return f.NvidiaPresent || f.AmdPresent || f.AscendPresent
}

func (f AcceleratorFacts) Vendors() []string {
	vendors := []string{}
	if f.NvidiaPresent {
		vendors = append(vendors, "nvidia")
	}
	if f.AmdPresent {
		vendors = append(vendors, "amd")
	}
	if f.AscendPresent {
		vendors = append(vendors, "ascend")
	}
	return vendors
}

// Credentials is the shared fleet SSH identity, generated once per run and
// read-only afterwards.
type Credentials struct {
	PrivateKeyPath string
	PublicKeyPath  string
	SSHConfigPath  string
}

// StageResult is one host's outcome for one stage.
type StageResult struct {
	Host   Host
	OK     bool
	Output string
	Err    error
}

// ContainerSpec is the computed launch parameter set for one host's
// workspace container. Computed fresh each run, never persisted.
type ContainerSpec struct {
	Name       string
	Image      string
	DeviceArgs []string
	RunArgs    []string
}
