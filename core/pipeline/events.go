package pipeline

// Status describes where an item is in its lifecycle.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusFetching   Status = "fetching"
	StatusExtracting Status = "extracting"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Phase names the pipeline stage an event belongs to.
type Phase string

const (
	PhaseCover    Phase = "cover"
	PhaseIndex    Phase = "index"
	PhaseArticle  Phase = "article"
	PhaseAssemble Phase = "assemble"
)

// Event reports progress on one item. Err is set only for StatusFailed.
type Event struct {
	Phase  Phase
	Item   string
	Status Status
	Err    error
}
