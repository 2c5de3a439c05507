package utils

import (
	"fmt"
	"strings"
)

// Bitrate holds the video bandwidth hints written into an answer, in kbps.
type Bitrate struct {
	AS  int
	Min int
	Max int
}

// DefaultBitrate favors a sharp picture for landmark detection.
var DefaultBitrate = Bitrate{AS: 2500, Min: 1500, Max: 3000}

// PatchSDPForQuality adds a b=AS line to the video section and an fmtp
// line with x-google bitrate hints after the VP8 rtpmap.
func PatchSDPForQuality(sdp string, rate Bitrate) string {
	eol := "\n"
	if strings.Contains(sdp, "\r\n") {
		eol = "\r\n"
	}
	lines := strings.Split(strings.ReplaceAll(sdp, "\r\n", "\n"), "\n")

	out := make([]string, 0, len(lines)+4)
	inVideo := false
	insertedFmtp := false

	for _, line := range lines {
		out = append(out, line)
		trim := strings.TrimSpace(line)

		if strings.HasPrefix(trim, "m=") {
			inVideo = strings.HasPrefix(trim, "m=video")
			if inVideo {
				insertedFmtp = false
				if rate.AS > 0 {
					out = append(out, fmt.Sprintf("b=AS:%d", rate.AS))
				}
			}
			continue
		}

		if !inVideo || insertedFmtp || rate.Min <= 0 || rate.Max <= 0 {
			continue
		}
		if strings.HasPrefix(trim, "a=rtpmap:") && strings.Contains(trim, "VP8/90000") {
			payload := strings.TrimSpace(strings.SplitN(strings.TrimPrefix(trim, "a=rtpmap:"), " ", 2)[0])
			if payload == "" {
				continue
			}
			out = append(out, fmt.Sprintf("a=fmtp:%s x-google-min-bitrate=%d;x-google-max-bitrate=%d;x-google-start-bitrate=%d;max-fr=30;max-fs=3600",
				payload, rate.Min, rate.Max, (rate.Min+rate.Max)/2))
			insertedFmtp = true
		}
	}

	return strings.Join(out, eol)
}
