package procsup

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// KillTree kills the process with the given pid and every descendant. Processes
// that exit while the tree is walked are ignored.
func KillTree(pid int) error {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		killProcessGroup(pid)
		if isGone(err) {
			return nil
		}
		return fmt.Errorf("lookup process %d: %w", pid, err)
	}

	// walk before signalling so reparented children are still reachable
	tree := descendants(root)
	killProcessGroup(pid)

	var errs []error
	for _, child := range tree {
		if err := child.Kill(); err != nil && !isGone(err) {
			errs = append(errs, fmt.Errorf("kill child %d: %w", child.Pid, err))
		}
	}
	if err := root.Kill(); err != nil && !isGone(err) {
		errs = append(errs, fmt.Errorf("kill %d: %w", pid, err))
	}
	return errors.Join(errs...)
}

// FindByCmdline returns the pids of processes whose executable name starts
// with namePrefix (case-insensitive) and whose command line contains fragment.
func FindByCmdline(namePrefix, fragment string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var pids []int
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || !strings.HasPrefix(strings.ToLower(name), strings.ToLower(namePrefix)) {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil || !strings.Contains(cmdline, fragment) {
			continue
		}
		pids = append(pids, int(p.Pid))
	}
	return pids, nil
}

func descendants(p *process.Process) []*process.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}
	var all []*process.Process
	for _, c := range children {
		all = append(all, c)
		all = append(all, descendants(c)...)
	}
	return all
}

func isGone(err error) bool {
	return errors.Is(err, process.ErrorProcessNotRunning) ||
		errors.Is(err, os.ErrProcessDone) ||
		errors.Is(err, syscall.ESRCH)
}
