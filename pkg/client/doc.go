/*
Package client provides a Go client library for the translation HTTP API.

The client package wraps the service's REST endpoints with a convenient,
idiomatic Go interface. It handles multipart uploads, long-poll timing,
error decoding, and provides type-safe methods for every operation the
server exposes.

# Architecture

The client provides a high-level interface to the service's API:

	┌──────────────────── APPLICATION CODE ──────────────────────┐
	│                                                            │
	│  import "github.com/glottahq/glotta/pkg/client"            │
	│                                                            │
	│  c := client.New("http://localhost:8000")                  │
	│  ack, err := c.Submit([]string{"page.png"}, "Japanese")    │
	│                                                            │
	└──────────────────┬─────────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ─────────────────────────┐
	│                                                            │
	│  ┌──────────────────────────────────────────────┐          │
	│  │           Client Wrapper                     │          │
	│  │  - Per-call deadlines                        │          │
	│  │  - Multipart encoding                        │          │
	│  │  - JSON decoding into shared types           │          │
	│  │  - APIError extraction from error bodies     │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │          net/http Client                     │          │
	│  │  - Connection reuse                          │          │
	│  │  - Context cancellation                      │          │
	│  └──────────────────┬───────────────────────────┘          │
	└─────────────────────┼──────────────────────────────────────┘
	                      │ HTTP/JSON (port 8000)
	                      ▼
	                 API server

# Operations

	Submit(paths, lang)        upload images, receive a task id
	Result(taskID, timeout)    long-poll for the task snapshot
	Languages()                list supported target languages
	Stats()                    queue / worker / cluster / key stats
	Health()                   component health verdict

# Timeouts

Every method builds its own request context. Quick lookups get a short
deadline, submissions get a generous one for large uploads, and result
polls extend the local deadline past the server's poll window so the
server, not the client, decides when to answer.

# Errors

Non-2xx responses decode into *APIError carrying the HTTP status code
and the server's detail message, so CLI surfaces can print exactly what
the server said:

	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		// unknown task id
	}

Transport failures (connection refused, timeouts) come back as wrapped
errors from net/http and are distinguishable from server rejections by
the absence of an APIError.

The Result call returns whatever snapshot the server produced: a
finished task, a failed one, or an in-flight task with whichever images
have already landed. Callers that want a final answer loop on Result
until the status reports a terminal state.
*/
package client
