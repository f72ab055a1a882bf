// Package correlation encodes the item/owner pair that rides through the
// transcoding service as opaque passthrough metadata.
package correlation

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// MaxBytes is the provider's ceiling on echoed passthrough metadata.
const MaxBytes = 255

type Kind int

const (
	KindNone Kind = iota
	KindStructured
	KindPlain
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindPlain:
		return "plain"
	default:
		return "none"
	}
}

// Payload is the decoded correlation. OwnerID is empty when unknown.
type Payload struct {
	Kind    Kind
	ItemID  string
	OwnerID string
}

// None is returned when nothing usable could be recovered.
var None = Payload{Kind: KindNone}

func (p Payload) Valid() bool {
	return p.Kind != KindNone && p.ItemID != ""
}

type wire struct {
	ItemID  string `json:"i"`
	OwnerID string `json:"o,omitempty"`
}

// Encode serializes the pair and guarantees the result fits in MaxBytes.
// When it does not, the owner id is shortened (and then dropped) before
// the item id is touched; cuts always land on rune boundaries.
func Encode(itemID, ownerID string) string {
	itemID = strings.ToValidUTF8(itemID, "")
	ownerID = strings.ToValidUTF8(ownerID, "")

	if s := marshal(itemID, ownerID); len(s) <= MaxBytes {
		return s
	}
	if ownerID != "" {
		owner := longestPrefix(ownerID, func(prefix string) bool {
			return len(marshal(itemID, prefix)) <= MaxBytes
		})
		if owner != "" {
			return marshal(itemID, owner)
		}
	}
	item := longestPrefix(itemID, func(prefix string) bool {
		return len(marshal(prefix, "")) <= MaxBytes
	})
	return marshal(item, "")
}

// Decode never fails: structured JSON, then a bare string taken as the
// item id, then None.
func Decode(raw string) Payload {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return None
	}

	switch trimmed[0] {
	case '{':
		var aux struct {
			I       string `json:"i"`
			O       string `json:"o"`
			ItemID  string `json:"itemId"`
			OwnerID string `json:"ownerId"`
		}
		if err := json.Unmarshal([]byte(trimmed), &aux); err != nil {
			return None
		}
		item := firstNonEmpty(aux.I, aux.ItemID)
		if item == "" {
			return None
		}
		return Payload{Kind: KindStructured, ItemID: item, OwnerID: firstNonEmpty(aux.O, aux.OwnerID)}
	case '"':
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			return None
		}
		return plain(s)
	default:
		return plain(trimmed)
	}
}

func plain(s string) Payload {
	s = strings.TrimSpace(s)
	if s == "" || !utf8.ValidString(s) {
		return None
	}
	if len(s) > MaxBytes {
		s = longestPrefix(s, func(p string) bool { return len(p) <= MaxBytes })
	}
	return Payload{Kind: KindPlain, ItemID: s}
}

func marshal(itemID, ownerID string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding a struct of strings cannot fail
	_ = enc.Encode(wire{ItemID: itemID, OwnerID: ownerID})
	return strings.TrimSuffix(buf.String(), "\n")
}

// longestPrefix returns the longest rune-aligned prefix of s accepted by
// fits. fits must be monotonic: if a prefix fits, every shorter one does.
func longestPrefix(s string, fits func(string) bool) string {
	bounds := make([]int, 0, len(s)+1)
	for i := range s {
		bounds = append(bounds, i)
	}
	bounds = append(bounds, len(s))

	lo, hi := 0, len(bounds)-1
	best := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if fits(s[:bounds[mid]]) {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best < 0 {
		return ""
	}
	return s[:bounds[best]]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
