package platform

import "golang.org/x/sys/unix"

// readNice returns the nice value of pid. The raw getpriority syscall on
// Linux reports 20-nice (1..40), unlike the libc wrapper.
func readNice(pid int) (int, error) {
	v, err := unix.Getpriority(unix.PRIO_PROCESS, pid)
	if err != nil {
		return 0, err
	}
	return 20 - v, nil
}
