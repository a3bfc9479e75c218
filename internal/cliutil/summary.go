package cliutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Paintersrp/rkill/internal/proctree"
)

// Invocation describes what a run was asked to do.
type Invocation struct {
	Query      proctree.Query
	Containers []string
	Dry        bool
}

// String renders the invocation the way the header and footer show it.
func (inv Invocation) String() string {
	pids := "none"
	if len(inv.Query.PIDs) > 0 {
		parts := make([]string, len(inv.Query.PIDs))
		for i, pid := range inv.Query.PIDs {
			parts[i] = strconv.Itoa(pid)
		}
		pids = strings.Join(parts, ",")
	}
	s := fmt.Sprintf("pid=%s, name='%s', pattern='%s'", pids, inv.Query.Name, inv.Query.Pattern)
	if len(inv.Containers) > 0 {
		s += fmt.Sprintf(", container='%s'", strings.Join(inv.Containers, ","))
	}
	return s + fmt.Sprintf(", dry=%t", inv.Dry)
}

// Header is printed before any process is looked up.
func Header(inv Invocation) string {
	return "rkill called: " + inv.String()
}

// Footer summarises a run. Dry runs count targets, real runs count victims.
func Footer(inv Invocation, res proctree.Result) string {
	count := len(res.Victims)
	if inv.Dry {
		count = len(res.Targets)
	}
	if len(res.Targets) == 0 {
		return "rkill: No matching processes!"
	}
	return fmt.Sprintf("Total of [ %d ] victims! ( %s )", count, inv.String())
}
