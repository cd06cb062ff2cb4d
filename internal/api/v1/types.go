package apiv1

// Pong is the response body for the ping endpoint.
type Pong struct {
	Ping string `json:"ping"`
}
