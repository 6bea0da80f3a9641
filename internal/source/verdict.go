package source

// Verdict is the outcome of one filter stage. The pipeline is a sequential
// reduction: the first non-OK verdict discards the candidate and moves on to
// the next one in the batch.
type Verdict struct {
	OK     bool
	Reason string
}

func accept() Verdict {
	return Verdict{OK: true}
}

func skip(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Skip reasons, used in logs and tests.
const (
	ReasonMissingFields = "missing required fields"
	ReasonStale         = "outside lookback window"
	ReasonFuture        = "future-dated"
	ReasonAuthor        = "author mismatch"
	ReasonDenylist      = "denylisted url"
	ReasonSeen          = "already seen"
	ReasonLanguage      = "language mismatch"
	ReasonDuplicate     = "near-duplicate headline"
)
