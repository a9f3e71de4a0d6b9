// Package discovery finds achievement servers with mDNS/DNS-SD.
//
// Servers advertise the _boopbox._tcp service. The instance name is the
// server's display name; the SRV record carries the port. TXT records:
//
//   - v:  protocol version (required)
//   - fp: hex SHA-256 of the server certificate (optional)
//   - n:  human readable server name (optional)
//
// Devices on a development network browse for the service, pick a server
// and build connection credentials from it. A device that learned the
// fingerprint over mDNS can pin it instead of trusting any certificate.
// Discovery is a convenience only: production devices are configured with
// explicit credentials.
package discovery
