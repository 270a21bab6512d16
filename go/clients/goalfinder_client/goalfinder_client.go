package goalfinder_client

import (
	"net/http"

	"github.com/goalfinder/panel/go/clients"
)

// Client talks to the GoalFinder device's HTTP API. The device serves
// plain text counters and JSON settings from its access-point address.
type Client struct {
	*clients.BaseClient
	// uploadClient has no overall timeout. Firmware uploads run for
	// minutes and are bounded by the request context instead.
	uploadClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseClient:   clients.NewBaseClient(baseURL),
		uploadClient: &http.Client{},
	}
}
