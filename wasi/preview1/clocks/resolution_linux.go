package clocks

import "golang.org/x/sys/unix"

func resolution(id int32) (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGetres(id, &ts); err != nil {
		return 0, err
	}
	return ts.Nano(), nil
}
