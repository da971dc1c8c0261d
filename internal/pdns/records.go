package pdns

import "fmt"

// TtlConfig holds the three TTL values the engine stamps onto records.
// Zero-valued fields are NOT treated as "use the default" -
// callers should start from DefaultTTLs and override individual fields.
type TtlConfig struct {
	SoaTTL  uint32
	NsTTL   uint32
	AaaaTTL uint32
}

// DefaultTTLs returns the stock TTLs: a short AAAA TTL since addresses
// move with containers, a long NS TTL for the stable ACME delegation.
func DefaultTTLs() TtlConfig {
	return TtlConfig{
		SoaTTL:  256,
		NsTTL:   7200,
		AaaaTTL: 16,
	}
}

const (
	serial  = 1
	refresh = 86400
	retry   = 7200
	expire  = 3600000
	minimum = 3600
)

func soaRecord(qname, domain, hostmaster string, ttl uint32) ResponseRecord {
	return ResponseRecord{
		QType:   "SOA",
		QName:   qname,
		Content: fmt.Sprintf("%s %s %d %d %d %d %d", domain, hostmaster, serial, refresh, retry, expire, minimum),
		TTL:     ttl,
	}
}

func nsRecord(qname, target string, ttl uint32) ResponseRecord {
	return ResponseRecord{
		QType:   "NS",
		QName:   qname,
		Content: target,
		TTL:     ttl,
	}
}

func aaaaRecord(qname, address string, ttl uint32) ResponseRecord {
	return ResponseRecord{
		QType:   "AAAA",
		QName:   qname,
		Content: address,
		TTL:     ttl,
	}
}
