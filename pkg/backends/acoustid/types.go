package acoustid

// LookupResponse is the body of /v2/lookup
type LookupResponse struct {
	Status  string    `json:"status"`
	Results []Result  `json:"results"`
	Error   *APIError `json:"error,omitempty"`
}

// Result groups recordings sharing one fingerprint match
type Result struct {
	ID         string      `json:"id"`
	Score      float64     `json:"score"`
	Recordings []Recording `json:"recordings"`
}

// Recording is a MusicBrainz recording attached to a result
type Recording struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Artists []Artist `json:"artists"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// APIError is returned with status "error"
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
