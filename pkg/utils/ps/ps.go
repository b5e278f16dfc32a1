package ps

import (
	"github.com/shirou/gopsutil/v3/disk"
)

type Usage struct {
	Free        uint64  `json:"free"`
	Total       uint64  `json:"total"`
	UsedPercent float64 `json:"usedPercent"`
}

// DiskUsage reports the usage of the filesystem holding path.
func DiskUsage(path string) (Usage, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return Usage{}, err
	}

	return Usage{
		Free:        usage.Free,
		Total:       usage.Total,
		UsedPercent: usage.UsedPercent,
	}, nil
}
