package telegram

import (
	"net/http"
	"time"

	"github.com/m3rciful/timebot/core/httpclient"
)

// BuildHTTPClient returns the client used for Bot API calls. getUpdates
// holds the response for up to pollTimeout, so both deadlines sit above it.
// Bot API methods are not idempotent: only transport errors are retried.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	return httpclient.New(httpclient.Options{
		Timeout:       pollTimeout + 20*time.Second,
		HeaderTimeout: pollTimeout + 10*time.Second,
	})
}
