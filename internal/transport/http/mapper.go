package http

import (
	"github.com/vovakirdan/calldesk/internal/proto"
	"github.com/vovakirdan/calldesk/internal/store"
)

func callToRecord(c *store.Call) proto.CallRecord {
	return proto.CallRecord{
		ID:              c.ID,
		Direction:       proto.CallDirection(c.Direction),
		Status:          proto.CallStatus(c.Status),
		SourceE164:      c.SourceE164,
		DestinationE164: c.DestinationE164,
		StartedAt:       c.StartedAt,
		EndedAt:         c.EndedAt,
		DurationSeconds: c.DurationSeconds,
		Metadata:        c.Metadata,
	}
}

func callsToRecords(calls []*store.Call) []proto.CallRecord {
	out := make([]proto.CallRecord, 0, len(calls))
	for _, c := range calls {
		out = append(out, callToRecord(c))
	}
	return out
}

func segmentToProto(s *store.TranscriptSegment) proto.TranscriptSegment {
	return proto.TranscriptSegment{
		ID:                  s.ID,
		ParticipantIdentity: s.ParticipantIdentity,
		StartTime:           s.StartTime,
		Text:                s.Text,
	}
}

func segmentsToProto(segs []*store.TranscriptSegment) []proto.TranscriptSegment {
	out := make([]proto.TranscriptSegment, 0, len(segs))
	for _, s := range segs {
		out = append(out, segmentToProto(s))
	}
	return out
}

// liveStatus reports whether a call may still produce transcript segments.
func liveStatus(s store.CallStatus) bool {
	switch s {
	case store.CallStatusRinging, store.CallStatusInProgress, store.CallStatusAnswered:
		return true
	default:
		return false
	}
}

func parseDirection(raw string) (store.CallDirection, bool) {
	switch d := store.CallDirection(raw); d {
	case "", store.CallDirectionInbound, store.CallDirectionOutbound:
		return d, true
	default:
		return "", false
	}
}

func parseStatus(raw string) (store.CallStatus, bool) {
	switch s := store.CallStatus(raw); s {
	case "", store.CallStatusRinging, store.CallStatusInProgress, store.CallStatusAnswered,
		store.CallStatusCompleted, store.CallStatusMissed, store.CallStatusFailed:
		return s, true
	default:
		return "", false
	}
}
