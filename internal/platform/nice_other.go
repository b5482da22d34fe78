//go:build !windows && !linux

package platform

import "golang.org/x/sys/unix"

// readNice returns the nice value of pid.
func readNice(pid int) (int, error) {
	return unix.Getpriority(unix.PRIO_PROCESS, pid)
}
