package jobcontroller

import (
	"bufio"
	"bytes"
	"fmt"
)

// parseNrMapped extracts the "nr_mapped" counter from /proc/vmstat
// content (one "key value" pair per line).
func parseNrMapped(data []byte) (int64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var key string
		var value int64
		line := scanner.Text()
		n, err := fmt.Sscanf(line, "%s %d", &key, &value)
		if err != nil || n != 2 {
			continue
		}
		if key == "nr_mapped" {
			return value, nil
		}
	}
	return 0, fmt.Errorf("jobcontroller: nr_mapped not found in vmstat")
}
