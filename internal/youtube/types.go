package youtube

// PlayerResponse is the subset of the embedded player document that the
// pipeline reads.
type PlayerResponse struct {
	Captions     *captions    `json:"captions,omitempty"`
	VideoDetails videoDetails `json:"videoDetails"`
}

type captions struct {
	Renderer *tracklistRenderer `json:"playerCaptionsTracklistRenderer,omitempty"`
}

type tracklistRenderer struct {
	CaptionTracks []rawTrack `json:"captionTracks"`
}

type rawTrack struct {
	BaseURL        string      `json:"baseUrl"`
	LanguageCode   string      `json:"languageCode"`
	Name           *simpleText `json:"name,omitempty"`
	IsTranslatable bool        `json:"isTranslatable"`
	Kind           string      `json:"kind"`
	VssID          string      `json:"vssId"`
}

type simpleText struct {
	SimpleText string `json:"simpleText"`
}

type videoDetails struct {
	VideoID       string `json:"videoId"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	LengthSeconds string `json:"lengthSeconds"`
	ViewCount     string `json:"viewCount"`
	Thumbnail     struct {
		Thumbnails []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"thumbnail"`
}

// CaptionTrack is one available caption stream.
type CaptionTrack struct {
	BaseURL        string `json:"baseUrl"`
	LanguageCode   string `json:"languageCode"`
	Name           string `json:"name"`
	IsTranslatable bool   `json:"isTranslatable"`
	Kind           string `json:"kind"`
	VssID          string `json:"vssId"`
}

// LanguageOption is a deduplicated language entry for selection UIs.
type LanguageOption struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	IsTranslatable bool   `json:"isTranslatable"`
}

// VideoInfo summarises the video a page describes.
type VideoInfo struct {
	VideoID       string `json:"videoId"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	LengthSeconds int64  `json:"lengthSeconds"`
	ViewCount     int64  `json:"viewCount"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	HasCaptions   bool   `json:"hasCaptions"`
	CaptionCount  int    `json:"captionCount"`
}
