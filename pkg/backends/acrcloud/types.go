package acrcloud

// Response is the identify endpoint body
type Response struct {
	Status   Status   `json:"status"`
	Metadata Metadata `json:"metadata"`
}

// Status carries the result code. Some older responses put the score here.
type Status struct {
	Code  int      `json:"code"`
	Msg   string   `json:"msg"`
	Score *float64 `json:"score,omitempty"`
}

// Metadata holds the music matches
type Metadata struct {
	Music []Music `json:"music"`
}

// Music is one matched recording
type Music struct {
	Title       string   `json:"title"`
	Artists     []Artist `json:"artists"`
	Album       Album    `json:"album"`
	Label       string   `json:"label"`
	ReleaseDate string   `json:"release_date"`
	Genres      []Genre  `json:"genres"`

	// 0..100, per match
	Score *float64 `json:"score,omitempty"`
}

type Artist struct {
	Name string `json:"name"`
}

type Album struct {
	Name  string `json:"name"`
	Cover *Cover `json:"cover,omitempty"`
}

type Cover struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

type Genre struct {
	Name string `json:"name"`
}
