//go:build !linux && !darwin

package hostinfo

func kernelVersion() string {
	return ""
}
