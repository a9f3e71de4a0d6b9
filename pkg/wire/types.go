package wire

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Identifier sizes.
const (
	// UIDSize is the length of an NFC tag UID as produced by the reader.
	UIDSize = 7

	// AchievementIDSize is the length of an achievement identifier.
	AchievementIDSize = 20

	// MaxAchievements is the largest achievement list a CheckUID response can carry.
	MaxAchievements = 255
)

// ErrInvalidID is returned when parsing an identifier of the wrong length or encoding.
var ErrInvalidID = errors.New("invalid identifier")

// UID identifies a scanned NFC tag.
type UID [UIDSize]byte

// String returns the UID as lower-case hex.
func (u UID) String() string {
	return hex.EncodeToString(u[:])
}

// ParseUID parses a hex encoded UID. Colons between bytes are accepted.
func ParseUID(s string) (UID, error) {
	var uid UID
	if err := parseHex(uid[:], s); err != nil {
		return UID{}, fmt.Errorf("uid %q: %w", s, err)
	}
	return uid, nil
}

// AchievementID is an opaque content-addressed token returned by the server.
type AchievementID [AchievementIDSize]byte

// String returns the ID as lower-case hex.
func (a AchievementID) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAchievementID parses a hex encoded achievement ID.
func ParseAchievementID(s string) (AchievementID, error) {
	var id AchievementID
	if err := parseHex(id[:], s); err != nil {
		return AchievementID{}, fmt.Errorf("achievement id %q: %w", s, err)
	}
	return id, nil
}

func parseHex(dst []byte, s string) error {
	raw, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(s), ":", ""))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidID, len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}

// CheckUIDStatus classifies a CheckUID outcome.
type CheckUIDStatus uint8

const (
	// CheckUIDError means the request failed or no session was available.
	CheckUIDError CheckUIDStatus = iota

	// CheckUIDThrottled means the server rate limited the tag.
	CheckUIDThrottled

	// CheckUIDOk means the server returned an achievement list (possibly empty).
	CheckUIDOk
)

// String returns the status name.
func (s CheckUIDStatus) String() string {
	switch s {
	case CheckUIDError:
		return "Error"
	case CheckUIDThrottled:
		return "Throttled"
	case CheckUIDOk:
		return "Ok"
	default:
		return "Unknown"
	}
}

// CheckUIDResult is the outcome of a CheckUID exchange.
// Achievements is only meaningful when Status is CheckUIDOk.
type CheckUIDResult struct {
	Status       CheckUIDStatus
	Achievements []AchievementID
}

// ErrorResult returns the Error variant.
func ErrorResult() CheckUIDResult {
	return CheckUIDResult{Status: CheckUIDError}
}

// ThrottledResult returns the Throttled variant.
func ThrottledResult() CheckUIDResult {
	return CheckUIDResult{Status: CheckUIDThrottled}
}

// OkResult returns the Ok variant carrying the given achievements in order.
func OkResult(achievements []AchievementID) CheckUIDResult {
	if achievements == nil {
		achievements = []AchievementID{}
	}
	return CheckUIDResult{Status: CheckUIDOk, Achievements: achievements}
}
