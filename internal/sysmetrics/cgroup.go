package sysmetrics

import (
	"os"
	"strconv"
	"strings"
)

// cgroupCoreQuota reads the container's CPU quota/period from cgroup
// v2 first, falling back to v1, and returns the number of cores it
// implies. Grounded on the teacher's getMemoryLimit (ws/cgroup.go),
// generalized from a memory limit read to a CPU quota read.
func cgroupCoreQuota() (cores int, ok bool) {
	if quota, period, found := readCgroupV2CPU(); found {
		return quotaToCores(quota, period), true
	}
	if quota, period, found := readCgroupV1CPU(); found {
		return quotaToCores(quota, period), true
	}
	return 0, false
}

func quotaToCores(quota, period int64) int {
	if quota <= 0 || period <= 0 {
		return 0
	}
	cores := int(quota / period)
	if quota%period != 0 {
		cores++
	}
	if cores < 1 {
		cores = 1
	}
	return cores
}

// readCgroupV2CPU reads /sys/fs/cgroup/cpu.max, formatted as
// "<quota> <period>" or "max <period>" for unlimited.
func readCgroupV2CPU() (quota, period int64, ok bool) {
	data, err := os.ReadFile("/sys/fs/cgroup/cpu.max")
	if err != nil {
		return 0, 0, false
	}
	fields := strings.Fields(strings.TrimSpace(string(data)))
	if len(fields) != 2 || fields[0] == "max" {
		return 0, 0, false
	}
	q, err1 := strconv.ParseInt(fields[0], 10, 64)
	p, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return q, p, true
}

// readCgroupV1CPU reads cpu.cfs_quota_us and cpu.cfs_period_us
// separately, as cgroup v1 splits them into two files.
func readCgroupV1CPU() (quota, period int64, ok bool) {
	q, err := readInt64File("/sys/fs/cgroup/cpu/cpu.cfs_quota_us")
	if err != nil || q <= 0 {
		return 0, 0, false
	}
	p, err := readInt64File("/sys/fs/cgroup/cpu/cpu.cfs_period_us")
	if err != nil {
		return 0, 0, false
	}
	return q, p, true
}

func readInt64File(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
