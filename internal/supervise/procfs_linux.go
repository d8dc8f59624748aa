//go:build linux

package supervise

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// GroupPids walks /proc and collects every pid whose process group is pgid.
func GroupPids(pgid int) (mapset.Set[int], error) {
	pids := mapset.NewSet[int]()

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		group, err := processGroup(pid)
		if err != nil || group != pgid {
			continue
		}
		pids.Add(pid)
	}

	return pids, nil
}

func processGroup(pid int) (int, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, err
	}

	// /proc/[pid]/stat format: pid (comm) state ppid pgrp session ...
	// The comm field may contain spaces and parens, so find the last ')'
	s := string(data)
	idx := strings.LastIndex(s, ")")
	if idx < 0 {
		return 0, fmt.Errorf("malformed stat file")
	}
	fields := strings.Fields(s[idx+2:])
	if len(fields) < 3 {
		return 0, fmt.Errorf("insufficient fields in stat")
	}

	// fields[2] is pgrp (field index 4 in full stat, but index 2 after comm)
	group, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, err
	}
	return group, nil
}

func residentBytes(pid int) (int64, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "status"))
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if strings.TrimSuffix(fields[0], ":") == "VmRSS" {
			val, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return 0, err
			}
			return val * 1024, nil // kB to bytes
		}
	}
	return 0, nil
}

// sampleGroupRSS sums resident memory over the whole process group. Pids
// that vanish between the scan and the read are skipped.
func sampleGroupRSS(pgid int) (int64, error) {
	pids, err := GroupPids(pgid)
	if err != nil {
		return 0, err
	}

	var total int64
	pids.Each(func(pid int) bool {
		if b, err := residentBytes(pid); err == nil {
			total += b
		}
		return false
	})
	return total, nil
}
