//go:build unix

package supervisor

import "syscall"

// statDev returns the device number backing path, as used by
// checkSameFilesystem to detect that two roots live on different mounts.
// ok is false when path does not exist yet (not yet created by a prior
// session.State.Start), which is not itself an error.
func statDev(path string) (dev uint64, ok bool, err error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		if isNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(st.Dev), true, nil
}

func isNotExist(err error) bool {
	return err == syscall.ENOENT
}
