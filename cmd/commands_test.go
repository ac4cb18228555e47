package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
)

const timedText = `<transcript><text start="1" dur="1.5">Hello &amp;amp; welcome</text><text start="3" dur="1">Bye</text></transcript>`

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("SETTINGS_FILE", filepath.Join(dir, "providers.json"))
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "out"))
	t.Setenv("FETCH_BASE_DELAY_MS", "1")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writePage(t *testing.T, dir, trackURL string) string {
	t.Helper()
	player := `{"videoDetails":{"videoId":"vid42","title":"Talk","author":"Someone","lengthSeconds":"125","viewCount":"1234567"},` +
		`"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[` +
		`{"baseUrl":"` + trackURL + `","languageCode":"en","name":{"simpleText":"English"},"isTranslatable":true}]}}}`
	path := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(path, []byte(`<script>var ytInitialPlayerResponse = `+player+`;</script>`), 0o644))
	return path
}

func TestTracksCommand(t *testing.T) {
	dir := isolateEnv(t)
	page := writePage(t, dir, "https://t.example/api/timedtext?v=vid42&lang=en")

	out, err := runCLI(t, "tracks", "--page-file", page)
	require.NoError(t, err)
	assert.Contains(t, out, "Talk (vid42)")
	assert.Contains(t, out, "1,234,567 views")
	assert.Contains(t, out, "2m5s")
	assert.Contains(t, out, "English")
}

func TestDownloadCommandWritesFile(t *testing.T) {
	dir := isolateEnv(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(timedText))
	}))
	defer ts.Close()
	page := writePage(t, dir, ts.URL+"/api/timedtext?v=vid42&lang=en")

	out, err := runCLI(t, "download", "--page-file", page, "--format", "srt")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote ")

	data, err := os.ReadFile(filepath.Join(dir, "out", "vid42_en.srt"))
	require.NoError(t, err)
	assert.Equal(t, "1\n00:00:01,000 --> 00:00:02,500\nHello & welcome\n\n2\n00:00:03,000 --> 00:00:04,000\nBye", string(data))
}

func TestDownloadCommandStdout(t *testing.T) {
	dir := isolateEnv(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(timedText))
	}))
	defer ts.Close()
	page := writePage(t, dir, ts.URL+"/api/timedtext?v=vid42&lang=en")

	out, err := runCLI(t, "download", "--page-file", page, "--format", "txt", "--offset", "-1", "--stdout")
	require.NoError(t, err)
	assert.Equal(t, "Hello & welcome\nBye", out)
}

func TestDownloadCommandProcessWithoutKeyFails(t *testing.T) {
	dir := isolateEnv(t)
	page := writePage(t, dir, "https://t.example/unused")

	_, err := runCLI(t, "download", "--page-file", page, "--process", "summarize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "optimize or translate")
}

func TestConvertCommand(t *testing.T) {
	dir := isolateEnv(t)
	input := filepath.Join(dir, "talk.xml")
	require.NoError(t, os.WriteFile(input, []byte(timedText), 0o644))

	out, err := runCLI(t, "convert", input, "--to", "vtt")
	require.NoError(t, err)
	assert.Contains(t, out, "(2 cues)")

	data, err := os.ReadFile(filepath.Join(dir, "talk.vtt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "WEBVTT"))
	assert.Contains(t, string(data), "00:00:01.000 --> 00:00:02.500\nHello & welcome")
}

func TestConvertCommandRefusesOverwrite(t *testing.T) {
	dir := isolateEnv(t)
	input := filepath.Join(dir, "talk.srt")
	require.NoError(t, os.WriteFile(input, []byte("1\n00:00:01,000 --> 00:00:02,000\nHi\n"), 0o644))

	_, err := runCLI(t, "convert", input, "--to", "srt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overwrite")
}

func TestTestConnectionWithoutKeyFails(t *testing.T) {
	isolateEnv(t)

	_, err := runCLI(t, "test-connection", "anthropic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection test failed")

	_, err = runCLI(t, "test-connection", "mistral")
	require.Error(t, err)
}

func TestProvidersCommandMasksKeys(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-abcdefghijkl")

	out, err := runCLI(t, "providers")
	require.NoError(t, err)
	assert.Contains(t, out, "openai (default)")
	assert.Contains(t, out, "sk-a****ijkl")
	assert.NotContains(t, out, "sk-abcdefghijkl")
}

func TestUsageCommandEmpty(t *testing.T) {
	isolateEnv(t)

	out, err := runCLI(t, "usage")
	require.NoError(t, err)
	assert.Contains(t, out, "total")
}

func TestRenderUsage(t *testing.T) {
	out := renderUsage(processor.UsageStats{
		TotalRequests: 3,
		TotalTokens:   12345,
		ProviderStats: map[string]processor.ProviderUsage{
			"openai":    {Requests: 2, Tokens: 12000},
			"anthropic": {Requests: 1, Tokens: 345},
		},
	})

	assert.Contains(t, out, "12,345")
	assert.Less(t, strings.Index(out, "anthropic"), strings.Index(out, "openai"))
}
