package config

import "time"

const (
	// History pagination
	HistoryPageSize = 30
	// Fetch the next older page before the user hits the literal top edge,
	// so the request latency is hidden behind the remaining scroll distance.
	TopFetchThresholdPx = 150.0

	// Read receipts
	// The viewport counts as "at bottom" within this distance of content end.
	BottomThresholdPx = 40.0

	// Typing indicator
	// A typing_start with no matching stop expires after this long, to
	// tolerate a dropped stop event.
	TypingExpiry = 2 * time.Second

	// Uploads
	// Failed uploads stay visible this long before they are dropped from
	// the progress snapshot.
	FailedUploadRetention = 10 * time.Second

	// Realtime channel
	OutboundBufferSize = 256
)
