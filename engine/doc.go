// Package engine implements the request machinery shared by all API
// endpoint wrappers: request construction, content negotiation, transport
// retries with exponential backoff, credential refresh with a single
// replay, and the async-job create/poll protocol.
//
// # Quick start
//
//	c, err := engine.New("https://api.example.com",
//	    engine.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	c.SetTokens(engine.AuthTokens{Access: token})
//
//	result, err := c.Request(ctx, http.MethodGet, "/jobs/42")
//
// # Logical calls
//
// One logical call may produce several HTTP attempts: transport failures
// are retried with capped exponential backoff, and a 401 reporting expired
// credentials triggers one refresh followed by a full rebuild and replay of
// the request. HTTP error statuses are never retried; they surface as
// *StatusError carrying the server's extracted message.
//
// # Async jobs
//
// Servers answer long-running work with 201 Created plus a Location to
// poll, or 202 Accepted meaning poll the same request again. Request and
// Create follow both shapes transparently and hand back the terminal
// payload, giving up with *PollTimeoutError if the job stops making
// observable progress.
package engine
