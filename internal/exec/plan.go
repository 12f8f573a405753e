package exec

// Plan describes how the executor resolves a read.
type Plan struct {
	Root *PlanNode `json:"root"`
}

// PlanNode is an individual step in the plan tree.
type PlanNode struct {
	Name     string                 `json:"name"`
	Detail   map[string]interface{} `json:"detail,omitempty"`
	Children []*PlanNode            `json:"children,omitempty"`
}

// ExplainSelect reports the access path a Select on column would take.
func (e *Executor) ExplainSelect(column, relativeVersion int) *Plan {
	access := &PlanNode{Name: "LiveScan", Detail: map[string]interface{}{"table": e.table.Name(), "column": column}}
	for _, c := range e.table.IndexedColumns() {
		if c == column {
			access.Name = "IndexLookup"
			break
		}
	}
	return &Plan{Root: withVersion(access, relativeVersion)}
}

// ExplainSum reports the steps of a Sum over keys in [start, end].
func (e *Executor) ExplainSum(start, end int64, column, relativeVersion int) *Plan {
	keys := &PlanNode{Name: "KeyRange", Detail: map[string]interface{}{
		"table":  e.table.Name(),
		"column": e.table.KeyColumn(),
		"from":   start,
		"to":     end,
	}}
	root := &PlanNode{
		Name:     "Sum",
		Detail:   map[string]interface{}{"column": column},
		Children: []*PlanNode{withVersion(keys, relativeVersion)},
	}
	return &Plan{Root: root}
}

func withVersion(node *PlanNode, relativeVersion int) *PlanNode {
	if relativeVersion >= 0 {
		return node
	}
	return &PlanNode{
		Name:     "VersionWalk",
		Detail:   map[string]interface{}{"steps": -relativeVersion},
		Children: []*PlanNode{node},
	}
}
