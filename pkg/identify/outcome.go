package identify

import (
	"time"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/bpm"
	"github.com/eternnoir/mixident/pkg/enrich"
)

// Status is the terminal state of a segment
type Status string

const (
	StatusIdentified   Status = "identified"
	StatusUnidentified Status = "unidentified"
	StatusSkipped      Status = "skipped"
)

// Skip reasons
const (
	ReasonTooShort  = "too_short"
	ReasonNoAudio   = "no_audio"
	ReasonDuplicate = "duplicate"
)

// Snapshot keeps the raw material behind an outcome for the manifest
type Snapshot struct {
	Identification *Identification `json:"identification,omitempty"`
	Enrichment     *enrich.Bundle  `json:"enrichment,omitempty"`
}

// Outcome is the result of identifying one segment
type Outcome struct {
	Segment audio.Segment `json:"segment"`
	Status  Status        `json:"status"`

	// Identified
	Record *MergedRecord `json:"record,omitempty"`

	// Unidentified
	DetectedBPM *bpm.Estimate `json:"detected_bpm,omitempty"`

	// Skipped
	Reason string `json:"reason,omitempty"`

	Snapshot Snapshot      `json:"snapshot"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Identified builds an outcome for a named track
func Identified(seg audio.Segment, record *MergedRecord) *Outcome {
	return &Outcome{Segment: seg, Status: StatusIdentified, Record: record}
}

// Unidentified builds an outcome for a track no backend could name
func Unidentified(seg audio.Segment, detected *bpm.Estimate) *Outcome {
	return &Outcome{Segment: seg, Status: StatusUnidentified, DetectedBPM: detected}
}

// Skipped builds an outcome for a segment that was not submitted
func Skipped(seg audio.Segment, reason string) *Outcome {
	return &Outcome{Segment: seg, Status: StatusSkipped, Reason: reason}
}

// Label returns "Artist - Title" for identified outcomes
func (o *Outcome) Label() string {
	if o.Status != StatusIdentified || o.Record == nil {
		return ""
	}
	return o.Record.Key()
}
