package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
)

const (
	enURL = "https://t.example/api/timedtext?v=abc123&lang=en"
	frURL = enURL + "&tlang=fr"
	jaURL = "https://t.example/api/timedtext?v=abc123&lang=ja"

	enXML = `<transcript><text start="0" dur="1.5">Hello</text><text start="2" dur="1">World</text></transcript>`
	frXML = `<transcript><text start="0.1" dur="1.4">Bonjour</text><text start="2" dur="1">Monde</text></transcript>`
	jaXML = `<transcript><text start="0" dur="1">こんにちは</text></transcript>`
)

const playerJSON = `{"videoDetails":{"videoId":"abc123","title":"Demo","author":"Chan","lengthSeconds":"60","viewCount":"7"},` +
	`"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[` +
	`{"baseUrl":"` + enURL + `","languageCode":"en","name":{"simpleText":"English"},"isTranslatable":true,"vssId":".en"},` +
	`{"baseUrl":"` + jaURL + `","languageCode":"ja","name":{"simpleText":"Japanese"},"isTranslatable":false,"vssId":".ja"}` +
	`]}}}`

const playerJSONNoCaptions = `{"videoDetails":{"videoId":"nocap","title":"Silent"}}`

func pageFor(playerResponse string) string {
	return `<html><script>var ytInitialPlayerResponse = ` + playerResponse + `;</script></html>`
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchWithRetry(ctx context.Context, url string, maxRetries int) (string, error) {
	args := m.Called(ctx, url, maxRetries)
	return args.String(0), args.Error(1)
}

// stubFetcher serves fixed bodies by URL and fails for anything else.
type stubFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
}

func newStubFetcher(bodies map[string]string) *stubFetcher {
	return &stubFetcher{bodies: bodies, calls: map[string]int{}}
}

func (s *stubFetcher) set(url, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[url] = body
}

func (s *stubFetcher) count(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func (s *stubFetcher) FetchWithRetry(_ context.Context, url string, _ int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[url]++
	body, ok := s.bodies[url]
	if !ok {
		return "", apperr.Newf(apperr.ErrFetch, "subtitle download failed after 3 attempts: HTTP 404: %s", url)
	}
	return body, nil
}

// upperProcessor upper-cases every cue except those whose text is "World".
type upperProcessor struct {
	gotProvider llm.Provider
}

func (u *upperProcessor) ProcessSubtitles(_ context.Context, cues []subtitle.Cue, _ processor.Operation, provider llm.Provider, _ *processor.Options) ([]subtitle.Cue, error) {
	u.gotProvider = provider
	out := make([]subtitle.Cue, len(cues))
	for i, c := range cues {
		ok := c.Text != "World"
		if ok {
			c.Text = "<" + c.Text + ">"
		} else {
			c.Error = "boom"
		}
		c.Processed = &ok
		out[i] = c
	}
	return out, nil
}
