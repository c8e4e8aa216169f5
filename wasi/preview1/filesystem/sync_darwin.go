package filesystem

import "golang.org/x/sys/unix"

// darwin has no O_RSYNC; reads are synchronized by O_SYNC alone.
const oRsync = 0

func datasync(fd int) error {
	return unix.Fsync(fd)
}
