// Package httptransport implements the HTTP-based RemoteQuery transport
// and its mirror HTTPS responder endpoint, an alternative to the bus for
// deployments without a message broker.
package httptransport

import "net/netip"

// apiResponse is the wire format of GET /resolve/v1/{name}: a versioned,
// externally-tagged enum. A nil V1 means "no match" (this peer
// does not hold the container); a non-nil (possibly empty) slice means
// a match.
type apiResponse struct {
	V1 *[]netip.Addr `json:"V1"`
}
