package storage

// MergeAction is the dedup decision for one incoming record.
type MergeAction int

const (
	// MergeInsert means no record exists for the (timestamp, zone) key.
	MergeInsert MergeAction = iota
	// MergeReplace means the incoming record supersedes the stored one.
	MergeReplace
	// MergeSkip means the incoming record is discarded.
	MergeSkip
)

// ResolveConflict decides what an append does with an incoming record given
// the stored record for the same (timestamp, zone) key, if any. The incoming
// record replaces the stored one only when it is more complete (scored where
// the stored one is not) or its values differ; identical input is skipped so
// repeated appends stay idempotent. A raw rewrite never clobbers an existing
// score unless price or load actually changed.
func ResolveConflict(existing *ObservationRecord, incoming ObservationRecord) MergeAction {
	if existing == nil {
		return MergeInsert
	}

	valuesDiffer := !existing.Price.Equal(incoming.Price) || !existing.Load.Equal(incoming.Load)
	if valuesDiffer {
		return MergeReplace
	}

	moreComplete := incoming.Scored() && !existing.Scored()
	if moreComplete {
		return MergeReplace
	}

	if incoming.Scored() && existing.Scored() {
		if *incoming.SentimentScore != *existing.SentimentScore {
			return MergeReplace
		}
	}

	return MergeSkip
}
