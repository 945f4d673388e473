//go:build unix

package scanner

import (
	"os"
	"os/user"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var owners sync.Map // uid string -> user name

// fileMeta reads the access time and owning user of path.
func fileMeta(path string, _ os.FileInfo) (*time.Time, string) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return nil, ""
	}
	sec, nsec := st.Atim.Unix()
	atime := time.Unix(sec, nsec)
	return &atime, lookupOwner(st.Uid)
}

func lookupOwner(uid uint32) string {
	id := strconv.FormatUint(uint64(uid), 10)
	if name, ok := owners.Load(id); ok {
		return name.(string)
	}
	name := id
	if u, err := user.LookupId(id); err == nil && u.Username != "" {
		name = u.Username
	}
	owners.Store(id, name)
	return name
}
