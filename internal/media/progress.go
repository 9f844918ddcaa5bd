package media

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	rePercent     = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reDestination = regexp.MustCompile(`^\[(?:download|ExtractAudio|VideoConvertor|VideoRemuxer)\] Destination: (.+)$`)
	reMerge       = regexp.MustCompile(`^\[Merger\] Merging formats into "(.+)"$`)
	reAlready     = regexp.MustCompile(`^\[download\] (.+) has already been downloaded`)
	reElapsed     = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

// DownloadEvent is what one extractor output line tells us. Either field may be empty.
type DownloadEvent struct {
	Percent    float64
	HasPercent bool
	Path       string
}

// ParseDownloadLine extracts a percentage marker or an output path from one line.
// Lines that match nothing return ok=false.
func ParseDownloadLine(line string) (DownloadEvent, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return DownloadEvent{}, false
	}
	if m := reMerge.FindStringSubmatch(line); m != nil {
		return DownloadEvent{Path: m[1]}, true
	}
	if m := reDestination.FindStringSubmatch(line); m != nil {
		return DownloadEvent{Path: strings.TrimSpace(m[1])}, true
	}
	if m := reAlready.FindStringSubmatch(line); m != nil {
		return DownloadEvent{Path: m[1], Percent: 100, HasPercent: true}, true
	}
	m := rePercent.FindStringSubmatch(line)
	if m == nil {
		return DownloadEvent{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pct < 0 || pct > 100 {
		return DownloadEvent{}, false
	}
	return DownloadEvent{Percent: pct, HasPercent: true}, true
}

// ParseElapsed reads the transcoder's time=HH:MM:SS.ss marker as seconds.
func ParseElapsed(line string) (float64, bool) {
	m := reElapsed.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return float64(h*3600+mins*60) + sec, true
}

// TranscodePercent converts an elapsed marker into a percentage of duration.
func TranscodePercent(line string, duration float64) (float64, bool) {
	if duration <= 0 {
		return 0, false
	}
	elapsed, ok := ParseElapsed(line)
	if !ok {
		return 0, false
	}
	pct := elapsed / duration * 100
	if pct > 100 {
		pct = 100
	}
	return pct, true
}
