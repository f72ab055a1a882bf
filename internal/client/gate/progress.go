package gate

import "math"

const (
	ProgressFloor = 10
	ProgressCap   = 98
)

// DefaultVocabulary is the ordered list of stage tokens the processing
// pipeline reports.
var DefaultVocabulary = []string{
	"queued",
	"downloading",
	"probing",
	"extracting_audio",
	"mixing",
	"normalizing",
	"encoding",
	"muxing",
	"thumbnailing",
	"uploading",
	"finalizing",
	"publishing",
}

// Progress maps a stage token to a coarse percentage. Unknown or empty
// stages report the floor; 100 is never returned.
func Progress(stage string, vocabulary []string) int {
	idx := -1
	for i, token := range vocabulary {
		if token == stage {
			idx = i
			break
		}
	}
	if stage == "" || idx < 0 {
		return ProgressFloor
	}

	pct := int(math.Round(100 * float64(idx+1) / float64(len(vocabulary))))
	if pct < ProgressFloor {
		return ProgressFloor
	}
	if pct > ProgressCap {
		return ProgressCap
	}
	return pct
}
