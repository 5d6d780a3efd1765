// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"github.com/siderolabs/go-procfs/procfs"

	"github.com/tinkerforge/tng-base-init/internal/pkg/constants"
)

// BootParameters are the kernel command line parameters this process cares
// about. Unrecognized parameters are ignored, missing ones fall back to the
// values the image was built for.
type BootParameters struct {
	RootDevice string
	RootFSType string
	InitPath   string
}

// ReadBootParameters parses /proc/cmdline; /proc must be mounted.
func ReadBootParameters() BootParameters {
	return ParseBootParameters(procfs.ProcCmdline())
}

// ParseBootParameters extracts the root device, root filesystem type and
// init program from a kernel command line.
func ParseBootParameters(cmdline *procfs.Cmdline) BootParameters {
	params := BootParameters{
		RootDevice: constants.DefaultRootDevice,
		RootFSType: constants.DefaultRootFSType,
		InitPath:   constants.DefaultInitPath,
	}

	if v := cmdline.Get(constants.KernelParamRoot).First(); v != nil {
		params.RootDevice = *v
	}

	if v := cmdline.Get(constants.KernelParamRootFSType).First(); v != nil {
		params.RootFSType = *v
	}

	if v := cmdline.Get(constants.KernelParamInit).First(); v != nil {
		params.InitPath = *v
	}

	return params
}
