package calls

import (
	"context"
	"sort"
	"strings"

	"github.com/vovakirdan/calldesk/internal/proto"
	"github.com/vovakirdan/calldesk/internal/query"
)

// HistoryFilter narrows a call listing.
type HistoryFilter struct {
	Direction proto.CallDirection
	Status    proto.CallStatus
}

func (f HistoryFilter) key() query.Key {
	return CallsKey.With(f.Direction, f.Status)
}

// History returns an offset-paged list of call records.
func (s *Service) History(filter HistoryFilter) *query.Pages[proto.CallRecord] {
	return query.NewPages(s.cache, filter.key(), s.opts.PageSize, func(ctx context.Context, offset, limit int) ([]proto.CallRecord, error) {
		return s.api.ListCalls(ctx, proto.CallFilter{
			Direction: string(filter.Direction),
			Status:    string(filter.Status),
			Limit:     limit,
			Offset:    offset,
		})
	})
}

// RecentCalls reads the first limit records matching filter.
func (s *Service) RecentCalls(ctx context.Context, filter HistoryFilter, limit int) ([]proto.CallRecord, error) {
	if limit <= 0 {
		limit = s.opts.PageSize
	}
	return query.Fetch(ctx, s.cache, filter.key().With("recent", limit), func(ctx context.Context) ([]proto.CallRecord, error) {
		return s.api.ListCalls(ctx, proto.CallFilter{
			Direction: string(filter.Direction),
			Status:    string(filter.Status),
			Limit:     limit,
		})
	})
}

// Transcript returns a call's transcript ordered by start time.
func (s *Service) Transcript(ctx context.Context, callID string) ([]proto.TranscriptSegment, error) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return nil, ErrCallIDRequired
	}
	return query.Fetch(ctx, s.cache, TranscriptKey(callID), func(ctx context.Context) ([]proto.TranscriptSegment, error) {
		segments, err := s.api.Transcript(ctx, callID)
		if err != nil {
			return nil, err
		}
		return SortSegments(segments), nil
	})
}

// FollowTranscript delivers live segments until the stream ends, fn fails or
// ctx is cancelled. A billing rejection is returned as an *api.Error for which
// api.IsInsufficientBalance reports true.
func (s *Service) FollowTranscript(ctx context.Context, callID string, fn func(proto.TranscriptSegment) error) error {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return ErrCallIDRequired
	}

	err := s.api.StreamTranscript(ctx, callID, fn)
	// The stored transcript grew while following; drop the cached copy.
	s.cache.Invalidate(TranscriptKey(callID))
	if err != nil {
		s.log.Warn().Err(err).Str("call_id", callID).Msg("transcript stream ended with error")
	}
	return err
}

// SortSegments returns a copy of segments stably ordered by start time.
func SortSegments(segments []proto.TranscriptSegment) []proto.TranscriptSegment {
	out := append([]proto.TranscriptSegment(nil), segments...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}
