package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// ServerTXT is the decoded TXT data of a server.
type ServerTXT struct {
	Version     int
	Name        string
	Fingerprint string
}

// EncodeServerTXT creates TXT records for a server.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyVersion: strconv.Itoa(ProtocolVersion),
	}
	if info.Fingerprint != "" {
		txt[TXTKeyFingerprint] = strings.ToLower(info.Fingerprint)
	}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	return txt
}

// DecodeServerTXT parses server TXT records.
func DecodeServerTXT(txt TXTRecordMap) (*ServerTXT, error) {
	vStr, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	v, err := strconv.Atoi(vStr)
	if err != nil || v < 1 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, vStr)
	}
	return &ServerTXT{
		Version:     v,
		Name:        txt[TXTKeyName],
		Fingerprint: txt[TXTKeyFingerprint],
	}, nil
}

// TXTRecordsToStrings converts a map to "key=value" strings, sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+txt[k])
	}
	return out
}

// StringsToTXTRecords parses "key=value" strings. Entries without '=' are
// boolean attributes with an empty value.
func StringsToTXTRecords(records []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(records))
	for _, r := range records {
		if r == "" {
			continue
		}
		k, v, _ := strings.Cut(r, "=")
		txt[k] = v
	}
	return txt
}
