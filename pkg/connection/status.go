package connection

// Status is the externally observable connection status.
type Status uint8

const (
	// StatusNoConfig means no credentials are known.
	StatusNoConfig Status = iota

	// StatusDisconnected means credentials are known but no session is live.
	StatusDisconnected

	// StatusConnected means an authenticated session is live.
	StatusConnected

	// StatusInvalidCredentials means the server rejected the credentials.
	// No reconnection is attempted until they change.
	StatusInvalidCredentials
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNoConfig:
		return "NO_CONFIG"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnected:
		return "CONNECTED"
	case StatusInvalidCredentials:
		return "INVALID_CREDENTIALS"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) (Status, bool) {
	for st := StatusNoConfig; st <= StatusInvalidCredentials; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}
