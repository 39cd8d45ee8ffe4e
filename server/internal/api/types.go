package api

// HealthResponse is the payload for GET /healthz on the admin listener.
type HealthResponse struct {
	Status      string `json:"status"`
	DataRoot    string `json:"data_root"`
	FeedClients int    `json:"feed_clients"`
	Error       string `json:"error,omitempty"`
}
