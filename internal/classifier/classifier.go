package classifier

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type Result struct {
	Platform string `json:"platform"`
	IsValid  bool   `json:"is_valid"`
	Error    string `json:"error,omitempty"`
}

type platformRule struct {
	name  string
	hosts []string
	path  *regexp.Regexp
}

var youtubeID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var rules = []platformRule{
	{name: "vimeo", hosts: []string{"vimeo.com", "player.vimeo.com"}, path: regexp.MustCompile(`^/(video/)?\d+`)},
	{name: "tiktok", hosts: []string{"tiktok.com", "vm.tiktok.com", "vt.tiktok.com"}, path: regexp.MustCompile(`^/(@[^/]+/video/\d+|[A-Za-z0-9]+/?$|t/[A-Za-z0-9]+)`)},
	{name: "instagram", hosts: []string{"instagram.com"}, path: regexp.MustCompile(`^/(p|reel|reels|tv)/[A-Za-z0-9_-]+`)},
	{name: "twitter", hosts: []string{"twitter.com", "x.com", "mobile.twitter.com"}, path: regexp.MustCompile(`^/[^/]+/status/\d+`)},
	{name: "facebook", hosts: []string{"facebook.com", "fb.watch", "m.facebook.com"}, path: regexp.MustCompile(`^/(watch|reel|[^/]+/videos|share/[rv])|^/[A-Za-z0-9_-]+/?$`)},
	{name: "dailymotion", hosts: []string{"dailymotion.com", "dai.ly"}, path: regexp.MustCompile(`^/(video/)?[a-z0-9]+`)},
	{name: "twitch", hosts: []string{"twitch.tv", "clips.twitch.tv"}, path: regexp.MustCompile(`^/(videos/\d+|[^/]+/clip/[^/]+|[A-Za-z0-9_-]+$)`)},
	{name: "reddit", hosts: []string{"reddit.com", "old.reddit.com", "v.redd.it"}, path: regexp.MustCompile(`^/(r/[^/]+/comments/[a-z0-9]+|[a-z0-9]+)`)},
	{name: "soundcloud", hosts: []string{"soundcloud.com", "on.soundcloud.com"}, path: regexp.MustCompile(`^/[^/]+/[^/]+`)},
}

// Classify maps a public video URL to its platform. It performs no I/O.
func Classify(raw string) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid("", "url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("", "url is malformed")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return invalid("", "url has no host")
	}

	if platform, ok := classifyYouTube(host, u); ok {
		return platform
	}
	for _, rule := range rules {
		if !hostMatches(host, rule.hosts) {
			continue
		}
		if rule.path.MatchString(u.Path) {
			return Result{Platform: rule.name, IsValid: true}
		}
		return invalid(rule.name, fmt.Sprintf("%s url does not point at a video", rule.name))
	}
	return invalid("", "unsupported platform")
}

func classifyYouTube(host string, u *url.URL) (Result, bool) {
	switch host {
	case "youtu.be":
		if youtubeID.MatchString(strings.Trim(u.Path, "/")) {
			return Result{Platform: "youtube", IsValid: true}, true
		}
		return invalid("youtube", "youtube url has no video id"), true
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com":
	default:
		return Result{}, false
	}
	if u.Path == "/watch" && youtubeID.MatchString(u.Query().Get("v")) {
		return Result{Platform: "youtube", IsValid: true}, true
	}
	for _, prefix := range []string{"/shorts/", "/embed/", "/live/", "/v/"} {
		if strings.HasPrefix(u.Path, prefix) && youtubeID.MatchString(strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")) {
			return Result{Platform: "youtube", IsValid: true}, true
		}
	}
	return invalid("youtube", "youtube url has no video id"), true
}

func hostMatches(host string, candidates []string) bool {
	for _, c := range candidates {
		if host == c || strings.HasSuffix(host, "."+c) {
			return true
		}
	}
	return false
}

func invalid(platform, reason string) Result {
	return Result{Platform: platform, IsValid: false, Error: reason}
}
