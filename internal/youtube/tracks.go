package youtube

import (
	"net/url"
	"strconv"
)

// ExtractCaptionTracks lists the caption tracks in pr. It returns nil when the
// video has no captions; that is not an error.
func ExtractCaptionTracks(pr *PlayerResponse) []CaptionTrack {
	if pr == nil || pr.Captions == nil || pr.Captions.Renderer == nil {
		return nil
	}
	raw := pr.Captions.Renderer.CaptionTracks
	if len(raw) == 0 {
		return nil
	}

	tracks := make([]CaptionTrack, 0, len(raw))
	for _, rt := range raw {
		name := rt.LanguageCode
		if rt.Name != nil && rt.Name.SimpleText != "" {
			name = rt.Name.SimpleText
		}
		tracks = append(tracks, CaptionTrack{
			BaseURL:        rt.BaseURL,
			LanguageCode:   rt.LanguageCode,
			Name:           name,
			IsTranslatable: rt.IsTranslatable,
			Kind:           rt.Kind,
			VssID:          rt.VssID,
		})
	}
	return tracks
}

// AvailableLanguages collapses tracks to one option per language code,
// keeping the first track seen for each code.
func AvailableLanguages(tracks []CaptionTrack) []LanguageOption {
	seen := make(map[string]struct{}, len(tracks))
	options := make([]LanguageOption, 0, len(tracks))
	for _, t := range tracks {
		if _, ok := seen[t.LanguageCode]; ok {
			continue
		}
		seen[t.LanguageCode] = struct{}{}
		options = append(options, LanguageOption{
			Code:           t.LanguageCode,
			Name:           t.Name,
			IsTranslatable: t.IsTranslatable,
		})
	}
	return options
}

// SelectTrack returns the first track in targetLanguage, falling back to the
// first track overall.
func SelectTrack(tracks []CaptionTrack, targetLanguage string) (CaptionTrack, bool) {
	if len(tracks) == 0 {
		return CaptionTrack{}, false
	}
	for _, t := range tracks {
		if t.LanguageCode == targetLanguage {
			return t, true
		}
	}
	return tracks[0], true
}

// BuildSubtitleURL resolves the download URL for targetLanguage. A
// tlang=<translateTo> parameter is appended only when translate is set,
// translateTo is non-empty and the selected track is translatable. The
// existing query is kept as-is. ok is false only for an empty track list.
func BuildSubtitleURL(tracks []CaptionTrack, targetLanguage string, translate bool, translateTo string) (string, bool) {
	track, ok := SelectTrack(tracks, targetLanguage)
	if !ok {
		return "", false
	}
	if !translate || translateTo == "" || !track.IsTranslatable {
		return track.BaseURL, true
	}

	u, err := url.Parse(track.BaseURL)
	if err != nil {
		return track.BaseURL, true
	}
	param := "tlang=" + url.QueryEscape(translateTo)
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery += "&" + param
	}
	return u.String(), true
}

// VideoInfo summarises the video described by pr.
func (pr *PlayerResponse) VideoInfo() VideoInfo {
	d := pr.VideoDetails
	tracks := ExtractCaptionTracks(pr)
	info := VideoInfo{
		VideoID:      d.VideoID,
		Title:        d.Title,
		Author:       d.Author,
		HasCaptions:  len(tracks) > 0,
		CaptionCount: len(AvailableLanguages(tracks)),
	}
	info.LengthSeconds, _ = strconv.ParseInt(d.LengthSeconds, 10, 64)
	info.ViewCount, _ = strconv.ParseInt(d.ViewCount, 10, 64)
	if len(d.Thumbnail.Thumbnails) > 0 {
		info.Thumbnail = d.Thumbnail.Thumbnails[0].URL
	}
	return info
}
