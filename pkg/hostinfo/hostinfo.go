// Package hostinfo reports what the local machine looks like to the Swift
// toolchain, so commands can tell native builds from cross builds.
package hostinfo

import (
	"fmt"
	"runtime"
)

// Host describes the machine slipway is running on.
type Host struct {
	OS     string
	Arch   string
	Triple string
	Kernel string
}

// Detect inspects the current process's platform. It never shells out.
func Detect() (Host, error) {
	triple, err := TripleFor(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return Host{}, err
	}
	return Host{
		OS:     runtime.GOOS,
		Arch:   runtime.GOARCH,
		Triple: triple,
		Kernel: kernelVersion(),
	}, nil
}

// TripleFor maps a GOOS/GOARCH pair to the target triple the Swift
// toolchain uses for that platform. Apple platforms spell the 64-bit ARM
// architecture arm64 where Linux spells it aarch64.
func TripleFor(goos, goarch string) (string, error) {
	switch goos {
	case "linux":
		switch goarch {
		case "amd64":
			return "x86_64-unknown-linux-gnu", nil
		case "arm64":
			return "aarch64-unknown-linux-gnu", nil
		}
	case "darwin":
		switch goarch {
		case "amd64":
			return "x86_64-apple-macosx", nil
		case "arm64":
			return "arm64-apple-macosx", nil
		}
	}
	return "", fmt.Errorf("no known target triple for %s/%s", goos, goarch)
}

// StaticStdlibSupported reports whether --static-swift-stdlib works on the
// given OS. Static linking of the Swift runtime is a Linux feature.
func StaticStdlibSupported(goos string) bool {
	return goos == "linux"
}
