// Package graph builds a stage dependency graph from a template and computes
// the ready set of stages eligible to execute next.
package graph

import (
	"fmt"
	"sort"

	"github.com/randalmurphal/orc/internal/task"
)

// Node is one stage in the execution graph.
type Node struct {
	Name          string
	AgentRole     string
	DependsOn     []string
	Condition     *task.Condition
	OnFailure     string
	MaxExecutions int
	Order         int
}

// Graph is the execution graph for a template's stages.
type Graph struct {
	Nodes map[string]*Node
}

// FromTemplate builds a Graph from a template's stage list. If any stage
// declares depends_on, that is the explicit DAG. Otherwise dependencies are
// inferred from order: stages sharing an order form a parallel group, and
// each group depends on the entire previous group (spec §4.6).
func FromTemplate(t *task.Template) *Graph {
	g := &Graph{Nodes: make(map[string]*Node)}
	if t == nil || len(t.Stages) == 0 {
		return g
	}

	if t.UsesExplicitDependsOn() {
		for _, sd := range t.Stages {
			g.Nodes[sd.Name] = nodeFromDef(sd, sd.DependsOn)
		}
		return g
	}

	sorted := make([]task.StageDefinition, len(t.Stages))
	copy(sorted, t.Stages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	orderGroups := make(map[int][]task.StageDefinition)
	var orders []int
	for _, sd := range sorted {
		if _, ok := orderGroups[sd.Order]; !ok {
			orders = append(orders, sd.Order)
		}
		orderGroups[sd.Order] = append(orderGroups[sd.Order], sd)
	}
	sort.Ints(orders)

	var prevGroupNames []string
	for _, ord := range orders {
		group := orderGroups[ord]
		var names []string
		for _, sd := range group {
			deps := append([]string{}, prevGroupNames...)
			g.Nodes[sd.Name] = nodeFromDef(sd, deps)
			names = append(names, sd.Name)
		}
		prevGroupNames = names
	}
	return g
}

func nodeFromDef(sd task.StageDefinition, deps []string) *Node {
	maxExec := sd.MaxExecutions
	if maxExec == 0 {
		maxExec = 1
	}
	return &Node{
		Name:          sd.Name,
		AgentRole:     sd.AgentRole,
		DependsOn:     deps,
		Condition:     sd.Condition,
		OnFailure:     sd.OnFailure,
		MaxExecutions: maxExec,
		Order:         sd.Order,
	}
}

// StringSet is a minimal set-of-names type used throughout the ready-set
// computation.
type StringSet map[string]bool

// NewStringSet builds a StringSet from the given names.
func NewStringSet(names ...string) StringSet {
	s := make(StringSet, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// ReadySet returns the nodes whose dependencies are all satisfied (in
// completed or skipped), that are not already running/completed/skipped, and
// that have not exceeded their max_executions budget if previously failed.
func (g *Graph) ReadySet(completed, running, failed, skipped StringSet, execCounts map[string]int) []*Node {
	done := make(StringSet, len(completed)+len(skipped))
	for n := range completed {
		done[n] = true
	}
	for n := range skipped {
		done[n] = true
	}

	var ready []*Node
	// Deterministic iteration order for reproducible scheduling in tests.
	names := make([]string, 0, len(g.Nodes))
	for n := range g.Nodes {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		node := g.Nodes[name]
		if completed[name] || running[name] || skipped[name] {
			continue
		}
		if failed[name] {
			if execCounts[name] >= node.MaxExecutions {
				continue
			}
		}
		depsSatisfied := true
		for _, dep := range node.DependsOn {
			if !done[dep] {
				depsSatisfied = false
				break
			}
		}
		if depsSatisfied {
			ready = append(ready, node)
		}
	}
	return ready
}

// FailureRedirect returns the on_failure target for a failed stage, if any.
func (g *Graph) FailureRedirect(failedStage string) string {
	if node, ok := g.Nodes[failedStage]; ok {
		return node.OnFailure
	}
	return ""
}

// AllStageNames returns every stage name in topological (display) order.
// Not used for execution ordering, only for human-readable listings.
func (g *Graph) AllStageNames() []string {
	visited := make(StringSet)
	var result []string
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		if node, ok := g.Nodes[name]; ok {
			for _, dep := range node.DependsOn {
				visit(dep)
			}
		}
		result = append(result, name)
	}
	names := make([]string, 0, len(g.Nodes))
	for n := range g.Nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		visit(n)
	}
	return result
}

const (
	colorWhite = 0
	colorGray  = 1
	colorBlack = 2
)

// Validate reports missing dependency/redirect references and cycles.
func (g *Graph) Validate() []string {
	var errs []string

	names := make([]string, 0, len(g.Nodes))
	for n := range g.Nodes {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		node := g.Nodes[name]
		for _, dep := range node.DependsOn {
			if _, ok := g.Nodes[dep]; !ok {
				errs = append(errs, fmt.Sprintf("stage %q depends on unknown stage %q", name, dep))
			}
		}
		if node.OnFailure != "" {
			if _, ok := g.Nodes[node.OnFailure]; !ok {
				errs = append(errs, fmt.Sprintf("stage %q failure redirect to unknown stage %q", name, node.OnFailure))
			}
		}
	}

	colors := make(map[string]int, len(g.Nodes))
	for n := range g.Nodes {
		colors[n] = colorWhite
	}

	var hasCycle func(name string) bool
	hasCycle = func(name string) bool {
		colors[name] = colorGray
		node := g.Nodes[name]
		for _, dep := range node.DependsOn {
			if _, ok := colors[dep]; !ok {
				continue
			}
			if colors[dep] == colorGray {
				errs = append(errs, fmt.Sprintf("cycle detected involving stage %q", dep))
				return true
			}
			if colors[dep] == colorWhite && hasCycle(dep) {
				return true
			}
		}
		colors[name] = colorBlack
		return false
	}

	for _, name := range names {
		if colors[name] == colorWhite {
			hasCycle(name)
		}
	}

	return errs
}
