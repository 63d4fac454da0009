package stt

import "time"

// Transcript is one recognition result from a streaming session. Partials
// and finals share the shape; IsFinal tells them apart.
type Transcript struct {
	// Text is the recognized speech.
	Text string

	// IsFinal marks a committed result. Partials are provisional and may be
	// rewritten by the next event; only finals reach the insertion pipeline.
	IsFinal bool

	// Confidence is the provider's overall score in [0, 1], zero when the
	// vendor does not report one.
	Confidence float64

	// Words carries per-word timings and scores when the vendor provides
	// them, nil otherwise.
	Words []WordDetail
}

// WordDetail is one recognized word with its position in the stream. Start
// and End are offsets from the beginning of the session audio.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}
