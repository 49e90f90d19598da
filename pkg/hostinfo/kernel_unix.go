//go:build linux || darwin

package hostinfo

import (
	"bytes"

	"golang.org/x/sys/unix"
)

func kernelVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unameString(uts.Sysname[:]) + " " + unameString(uts.Release[:])
}

func unameString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
