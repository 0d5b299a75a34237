package main

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// systemHealthCheck reports unhealthy when host memory or CPU pressure is
// severe enough that the gateway is unlikely to serve traffic reliably.
// This is the gateway's dependency/system status check named in the
// domain stack alongside the Redis and market-data circuit checks.
func systemHealthCheck() error {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("read memory stats: %w", err)
	}
	if vm.UsedPercent > 95 {
		return fmt.Errorf("memory usage at %.1f%%", vm.UsedPercent)
	}

	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return fmt.Errorf("read cpu stats: %w", err)
	}
	if len(percentages) > 0 && percentages[0] > 98 {
		return fmt.Errorf("cpu usage at %.1f%%", percentages[0])
	}
	return nil
}
