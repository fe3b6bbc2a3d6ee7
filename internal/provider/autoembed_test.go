package provider

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"sourcerer/internal/fetch"
	"sourcerer/internal/media"
)

const (
	moviePlayerURL = "https://player.autoembed.cc/embed/movie/tt0111161"
	showPlayerURL  = "https://player.autoembed.cc/embed/tv/1399/1/2"
	movieAPIURL    = "https://tom.autoembed.cc/api/getVideoSource?id=tt0111161&type=movie"
	showAPIURL     = "https://tom.autoembed.cc/api/getVideoSource?id=1399%2F1%2F2&type=tv"

	serverA = "aHR0cHM6Ly9taXJyb3ItYS50ZXN0L2UvMQ=="
	serverB = "aHR0cHM6Ly9taXJyb3ItYi50ZXN0L2UvMg=="
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("reading test fixture %s: %v", name, err)
	}
	return string(data)
}

// mirrors serves the player page fixture and its mirror pages.
func mirrors(t *testing.T, fc *fetch.Fake, playerURL string) *fetch.Fake {
	t.Helper()
	return fc.
		Serve(playerURL, loadFixture(t, "player_page.html")).
		Serve("https://mirror-a.test/e/1", loadFixture(t, "mirror_sources.html")).
		Serve("https://mirror-b.test/e/2", loadFixture(t, "mirror_file.html")).
		Fail("https://mirror-c.test/e/3", errors.New("connection refused")).
		Serve("https://mirror-d.test/e/5", loadFixture(t, "mirror_empty.html")).
		Serve("https://mirror-e.test/e/6", loadFixture(t, "mirror_broken.html"))
}

var wantScraped = []media.EmbedRef{
	{EmbedID: "auto-embed-" + serverA + "-English", URL: "https://a.test/en.m3u8"},
	{EmbedID: "auto-embed-" + serverB + "-ENG-2", URL: "https://b.test/1.m3u8"},
	{EmbedID: "auto-embed-" + serverB + "-", URL: "https://b.test/2.m3u8"},
	{EmbedID: "auto-embed-" + serverB + "-720", URL: "https://b.test/3.m3u8"},
}

func TestAutoembedAPIFirst(t *testing.T) {
	fc := mirrors(t, fetch.NewFake(), moviePlayerURL).
		Serve(movieAPIURL, `{"videoSource":"https://api.test/master.m3u8","subtitles":[]}`)

	embeds, err := NewAutoembed("", "", nil).Scrape(context.Background(), fc, media.NewMovie("278", "tt0111161"))
	if err != nil {
		t.Fatalf("Scrape() error: %v", err)
	}

	want := []media.EmbedRef{{EmbedID: "autoembed-api", URL: "https://api.test/master.m3u8"}}
	if !reflect.DeepEqual(embeds, want) {
		t.Errorf("Scrape() = %v, want %v", embeds, want)
	}
	if n := fc.CallCount(moviePlayerURL); n != 0 {
		t.Errorf("player page fetched %d times, want 0", n)
	}

	calls := fc.Calls()
	if got := calls[0].Options.Headers["Referer"]; got != "https://tom.autoembed.cc/movie/tt0111161" {
		t.Errorf("API Referer = %q", got)
	}
	if !calls[0].Proxied {
		t.Error("API request should be proxied")
	}
}

func TestAutoembedShowAPI(t *testing.T) {
	fc := fetch.NewFake().Serve(showAPIURL, `{"videoSource":"https://api.test/s01e02.m3u8"}`)

	embeds, err := NewAutoembed("", "", nil).Scrape(context.Background(), fc, media.NewShow("1399", "", 1, 2))
	if err != nil {
		t.Fatalf("Scrape() error: %v", err)
	}
	if len(embeds) != 1 || embeds[0].URL != "https://api.test/s01e02.m3u8" {
		t.Errorf("Scrape() = %v", embeds)
	}
	if got := fc.Calls()[0].Options.Headers["Referer"]; got != "https://tom.autoembed.cc/tv/1399/1/2" {
		t.Errorf("API Referer = %q", got)
	}
}

func TestAutoembedFallsBackToScrape(t *testing.T) {
	tests := []struct {
		name string
		api  func(*fetch.Fake)
	}{
		{"empty video source", func(f *fetch.Fake) { f.Serve(movieAPIURL, `{"videoSource":""}`) }},
		{"not JSON", func(f *fetch.Fake) { f.Serve(movieAPIURL, `<html>cloudflare</html>`) }},
		{"request failed", func(f *fetch.Fake) { f.Fail(movieAPIURL, errors.New("timeout")) }},
		{"endpoint missing", func(f *fetch.Fake) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := mirrors(t, fetch.NewFake(), moviePlayerURL)
			tt.api(fc)

			embeds, err := NewAutoembed("", "", nil).Scrape(context.Background(), fc, media.NewMovie("278", "tt0111161"))
			if err != nil {
				t.Fatalf("Scrape() error: %v", err)
			}
			if !reflect.DeepEqual(embeds, wantScraped) {
				t.Errorf("Scrape() =\n%v\nwant\n%v", embeds, wantScraped)
			}
			if n := fc.CallCount(moviePlayerURL); n != 1 {
				t.Errorf("player page fetched %d times, want 1", n)
			}
			if got := fc.ProgressReports(); !reflect.DeepEqual(got, []int{50, 100}) {
				t.Errorf("progress = %v, want [50 100]", got)
			}
		})
	}
}

func TestAutoembedShowScrapePath(t *testing.T) {
	fc := mirrors(t, fetch.NewFake(), showPlayerURL)

	embeds, err := NewAutoembed("", "", nil).Scrape(context.Background(), fc, media.NewShow("1399", "tt0944947", 1, 2))
	if err != nil {
		t.Fatalf("Scrape() error: %v", err)
	}
	if len(embeds) != len(wantScraped) {
		t.Errorf("got %d embeds, want %d", len(embeds), len(wantScraped))
	}
}

func TestAutoembedNoServers(t *testing.T) {
	fc := fetch.NewFake().
		Serve(movieAPIURL, `{}`).
		Serve(moviePlayerURL, loadFixture(t, "player_no_servers.html"))

	embeds, err := NewAutoembed("", "", nil).Scrape(context.Background(), fc, media.NewMovie("", "tt0111161"))
	if !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if embeds != nil {
		t.Errorf("embeds = %v, want nil", embeds)
	}
}

func TestAutoembedAllMirrorsFail(t *testing.T) {
	fc := fetch.NewFake().
		Serve(moviePlayerURL, `<a data-server="aHR0cHM6Ly9taXJyb3ItYy50ZXN0L2UvMw=="></a><a data-server="???"></a>`).
		Fail("https://mirror-c.test/e/3", errors.New("reset"))

	_, err := NewAutoembed("", "", nil).Scrape(context.Background(), fc, media.NewMovie("", "tt0111161"))
	if !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestAutoembedPlayerPageFailure(t *testing.T) {
	fc := fetch.NewFake().Fail(moviePlayerURL, errors.New("dns failure"))

	_, err := NewAutoembed("", "", nil).Scrape(context.Background(), fc, media.NewMovie("", "tt0111161"))
	if !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestAutoembedInvalidRefMakesNoRequests(t *testing.T) {
	refs := []media.Ref{
		media.NewMovie("", ""),
		media.NewMovie("", "tt1/../../admin"),
		media.NewShow("abc", "", 1, 1),
		media.NewShow("1399", "", 1, 0),
	}
	for _, ref := range refs {
		t.Run(ref.String(), func(t *testing.T) {
			fc := fetch.NewFake()
			_, err := NewAutoembed("", "", nil).Scrape(context.Background(), fc, ref)
			if !errors.Is(err, media.ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
			if n := len(fc.Calls()); n != 0 {
				t.Errorf("made %d requests, want 0", n)
			}
		})
	}
}

func TestAutoembedDeterministicIDs(t *testing.T) {
	ref := media.NewMovie("", "tt0111161")

	first, err := NewAutoembed("", "", nil).Scrape(context.Background(), mirrors(t, fetch.NewFake(), moviePlayerURL), ref)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewAutoembed("", "", nil).Scrape(context.Background(), mirrors(t, fetch.NewFake(), moviePlayerURL), ref)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated scrape differs:\n%v\n%v", first, second)
	}
}

func TestAutoembedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAutoembed("", "", nil).Scrape(ctx, fetch.NewFake(), media.NewMovie("", "tt0111161"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestAutoembedMetadata(t *testing.T) {
	a := NewAutoembed("", "", nil)
	var _ Sourcerer = a
	if a.ID() != "autoembed" || a.Rank() != 10 {
		t.Errorf("ID/Rank = %q/%d", a.ID(), a.Rank())
	}
	if !reflect.DeepEqual(a.Flags(), []media.Flag{media.CORSAllowed}) {
		t.Errorf("Flags = %v", a.Flags())
	}
}
