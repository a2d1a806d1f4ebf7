package telemetry

// Span names used for instrumentation.
const (
	SpanFeedResolve   = "feed.resolve"
	SpanFeedFetch     = "feed.fetch"
	SpanRecenter      = "viewport.recenter"
	SpanHandoffCommit = "handoff.commit"
	SpanHandoffTake   = "handoff.consume"
	SpanBackendCall   = "backend.call"
)

// Span attribute keys.
const (
	AttrSessionID = "discoverymap.session_id"
	AttrFeedKey   = "discoverymap.feed.key"
	AttrFeedMode  = "discoverymap.feed.mode"
	AttrPostCount = "discoverymap.feed.posts"
	AttrPostID    = "discoverymap.post_id"
	AttrEndpoint  = "discoverymap.backend.endpoint"
)
