package mdp

import "encoding/json"

// requestOpts is the decoded form of a client request's opts_json
// frame. rid is carried alongside since both are read off the same
// inbound frame sequence.
type requestOpts struct {
	rid        string
	timeoutMS  int64
	retry      int
	persist    bool
	cacheTTLMS int64 // 0 means "don't cache this reply"
}

type rawRequestOpts struct {
	Timeout *int64 `json:"timeout"`
	Retry   *int   `json:"retry"`
	Persist *bool  `json:"persist"`
	Cache   *int64 `json:"cache"`
}

// parseRequestOpts decodes opts JSON, defaulting every field on
// malformed input rather than failing the request.
func parseRequestOpts(rid, optsJSON string) requestOpts {
	opts := requestOpts{
		rid:       rid,
		timeoutMS: int64(DefaultRequestTimeout / 1_000_000),
		retry:     0,
		persist:   false,
	}

	if optsJSON == "" {
		return opts
	}

	var raw rawRequestOpts
	if err := json.Unmarshal([]byte(optsJSON), &raw); err != nil {
		return opts
	}

	if raw.Timeout != nil {
		opts.timeoutMS = *raw.Timeout
	}
	if raw.Retry != nil {
		opts.retry = *raw.Retry
	}
	if raw.Persist != nil {
		opts.persist = *raw.Persist
	}
	if raw.Cache != nil {
		opts.cacheTTLMS = *raw.Cache
	}
	return opts
}

type rawReplyOpts struct {
	Cache *int64 `json:"cache"`
}

// parseReplyCacheTTL reads opts.cache (ms) off a worker reply's opts
// frame, defaulting to 0 (don't cache) on malformed/absent JSON.
func parseReplyCacheTTL(optsJSON string) int64 {
	if optsJSON == "" {
		return 0
	}
	var raw rawReplyOpts
	if err := json.Unmarshal([]byte(optsJSON), &raw); err != nil {
		return 0
	}
	if raw.Cache == nil {
		return 0
	}
	return *raw.Cache
}

type rawHeartbeatOpts struct {
	Concurrency *int `json:"concurrency"`
}

// applyHeartbeatOpts merges a worker's W_HEARTBEAT opts JSON into the
// worker record, ignoring malformed JSON entirely.
func applyHeartbeatOpts(w *worker, optsJSON string) {
	if optsJSON == "" {
		return
	}
	var raw rawHeartbeatOpts
	if err := json.Unmarshal([]byte(optsJSON), &raw); err != nil {
		return
	}
	if raw.Concurrency != nil {
		w.concurrency = *raw.Concurrency
	}
}
