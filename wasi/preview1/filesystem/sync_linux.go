package filesystem

import "golang.org/x/sys/unix"

const oRsync = unix.O_RSYNC

func datasync(fd int) error {
	return unix.Fdatasync(fd)
}
