package pdns

import (
	"strings"

	"github.com/benaryorg/lxddns/internal/containername"
)

// Kind identifies the branch of the name classification a query fell
// into.
type Kind int

const (
	// KindSoa is the zone apex: an SOA record is returned.
	KindSoa Kind = iota
	// KindNxdomain covers every unroutable/unknown name.
	KindNxdomain
	// KindAcme is an _acme-challenge delegation: an NS record is returned.
	KindAcme
	// KindSmartAAAA requires a live RemoteQuery for the container's addresses.
	KindSmartAAAA
)

const acmePrefix = "_acme-challenge."

// Classification is the pure result of classifying a query name: either a
// smart lookup (needs RemoteQuery) or one of the canned responses. It is a
// function of (qname, qtype, domain) alone and performs no I/O.
type Classification struct {
	Kind Kind

	// Container is set only for KindSmartAAAA: the name to RemoteQuery.
	Container string

	// Target is set only for KindAcme: the NS record's content.
	Target string
}

// Classify decides how a lookup for qname/qtype under the authoritative
// domain is answered. qname must already be ASCII-lowercased; qtype is
// compared case-sensitively against upper-case constants, which is what
// PowerDNS sends.
func Classify(qname, qtype, domain string) Classification {
	if qname == domain {
		return Classification{Kind: KindSoa}
	}

	suffix := "." + domain
	if !strings.HasSuffix(qname, suffix) {
		return Classification{Kind: KindNxdomain}
	}
	prefix := strings.TrimSuffix(qname, suffix)

	if strings.HasPrefix(prefix, acmePrefix) {
		tail := strings.TrimPrefix(prefix, acmePrefix)
		if _, err := containername.Parse(tail); err != nil {
			return Classification{Kind: KindNxdomain}
		}
		if qtype == "SOA" {
			return Classification{Kind: KindNxdomain}
		}
		return Classification{Kind: KindAcme, Target: tail + "." + domain}
	}

	if _, err := containername.Parse(prefix); err == nil {
		if qtype == "ANY" || qtype == "AAAA" {
			return Classification{Kind: KindSmartAAAA, Container: prefix}
		}
		return Classification{Kind: KindNxdomain}
	}

	return Classification{Kind: KindNxdomain}
}
