package store

// Persisted node outcomes. Skipped and unfinished nodes store NULL.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Noun is one distinct node type.
type Noun struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NodeRow is a node as persisted, with its depth below the queried root.
// Stats holds own values and Children the child_ aggregates; a stat is
// absent from Children when the node had no finalized children.
type NodeRow struct {
	ID          int64              `json:"id"`
	Description string             `json:"description"`
	ParentID    int64              `json:"parent_id,omitempty"`
	Noun        string             `json:"noun"`
	Outcome     string             `json:"outcome,omitempty"`
	Ignored     int                `json:"ignored"`
	Finalized   bool               `json:"finalized"`
	Depth       int                `json:"depth"`
	Stats       map[string]float64 `json:"stats"`
	Children    map[string]float64 `json:"children"`
}

// NodeUpdate carries the final state of a node. Values holds the node's own
// value for every tracked stat, keyed by stat name.
type NodeUpdate struct {
	ID      int64
	Values  map[string]any
	Outcome string
	Ignored int
}

// ExceptionRecord is one classified failure attached to a node.
type ExceptionRecord struct {
	ID        int64  `json:"id"`
	Class     string `json:"class"`
	Context   string `json:"context"`
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
	Output    string `json:"output,omitempty"`
	Line      int    `json:"line"`
	Path      string `json:"path"`
	Terminal  bool   `json:"terminal"`
	NodeID    int64  `json:"node_id"`
	Ignore    int    `json:"ignore"`
}

// DepthCount is the number of nodes at one depth of a tree.
type DepthCount struct {
	Depth int `json:"depth"`
	Count int `json:"count"`
}

// IgnoreFilter selects exceptions by the ignore level of their node.
type IgnoreFilter int

const (
	AnyIgnore IgnoreFilter = -1
	Real      IgnoreFilter = 0
	Ignored   IgnoreFilter = 1
	Warnings  IgnoreFilter = 2
)
