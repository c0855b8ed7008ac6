//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/mitchellh/go-ps"
)

// RunningProcesses returns the names from candidates that match a running
// process other than the current one and its ancestors, since the build tool
// that launched this hook is expected to be running.
// Matching ignores case and a ".exe" suffix.
func RunningProcesses(candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	wanted := make(map[string]string, len(candidates))
	for _, name := range candidates {
		wanted[normaliseExecutable(name)] = name
	}

	processList, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	lineage := ancestors(processList, os.Getpid())

	var found []string

	for _, process := range processList {
		if _, skip := lineage[process.Pid()]; skip {
			continue
		}

		name, ok := wanted[normaliseExecutable(process.Executable())]
		if !ok || slices.Contains(found, name) {
			continue
		}

		found = append(found, name)
	}

	sort.Strings(found)

	return found, nil
}

// ancestors returns pid and the process IDs of all its parents.
func ancestors(processList []ps.Process, pid int) map[int]struct{} {
	byPID := make(map[int]ps.Process, len(processList))
	for _, process := range processList {
		byPID[process.Pid()] = process
	}

	lineage := map[int]struct{}{pid: {}}

	for {
		process, ok := byPID[pid]
		if !ok {
			break
		}

		parent := process.PPid()
		if _, seen := lineage[parent]; seen || parent <= 0 {
			break
		}

		lineage[parent] = struct{}{}
		pid = parent
	}

	return lineage
}

func normaliseExecutable(name string) string {
	name = strings.ToLower(filepath.Base(strings.TrimSpace(name)))

	return strings.TrimSuffix(name, ".exe")
}
