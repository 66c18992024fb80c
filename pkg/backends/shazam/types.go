package shazam

// Response is the discovery payload printed by songrec
type Response struct {
	Track *Track `json:"track"`
}

// Track is the matched song
type Track struct {
	Key      string    `json:"key"`
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle"`
	Images   Images    `json:"images"`
	Share    Share     `json:"share"`
	Sections []Section `json:"sections"`
	Hub      Hub       `json:"hub"`
}

type Images struct {
	CoverArt   string `json:"coverart"`
	CoverArtHQ string `json:"coverarthq"`
}

type Share struct {
	Subject string `json:"subject"`
	Href    string `json:"href"`
}

// Section is one panel of the track page; SONG carries album, label and release
type Section struct {
	Type     string         `json:"type"`
	Metadata []MetadataItem `json:"metadata"`
}

type MetadataItem struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type Hub struct {
	Providers []Provider `json:"providers"`
}

type Provider struct {
	Type    string   `json:"type"`
	Actions []Action `json:"actions"`
}

type Action struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URI  string `json:"uri"`
}
