package classifier

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		url      string
		platform string
		valid    bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "youtube", true},
		{"https://youtu.be/dQw4w9WgXcQ", "youtube", true},
		{"https://youtube.com/shorts/dQw4w9WgXcQ", "youtube", true},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ&t=42", "youtube", true},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", "youtube", true},
		{"https://www.youtube.com/watch?v=short", "youtube", false},
		{"https://www.youtube.com/feed/trending", "youtube", false},
		{"https://vimeo.com/76979871", "vimeo", true},
		{"https://www.tiktok.com/@scout2015/video/6718335390845095173", "tiktok", true},
		{"https://www.instagram.com/reel/C1a2b3c4d5/", "instagram", true},
		{"https://x.com/someone/status/1234567890", "twitter", true},
		{"https://twitter.com/someone", "twitter", false},
		{"https://www.dailymotion.com/video/x7tgad0", "dailymotion", true},
		{"https://www.twitch.tv/videos/123456789", "twitch", true},
		{"https://www.reddit.com/r/videos/comments/abc123/title/", "reddit", true},
		{"https://soundcloud.com/artist/track", "soundcloud", true},
		{"https://example.com/x", "", false},
		{"ftp://youtube.com/watch?v=dQw4w9WgXcQ", "", false},
		{"not a url", "", false},
		{"", "", false},
		{"https://evilyoutube.com/watch?v=dQw4w9WgXcQ", "", false},
	}
	for _, tc := range cases {
		got := Classify(tc.url)
		if got.IsValid != tc.valid || got.Platform != tc.platform {
			t.Errorf("Classify(%q) = %+v, want platform %q valid %v", tc.url, got, tc.platform, tc.valid)
		}
		if !got.IsValid && got.Error == "" {
			t.Errorf("Classify(%q) invalid without a reason", tc.url)
		}
	}
}
