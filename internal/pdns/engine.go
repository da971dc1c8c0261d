package pdns

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/benaryorg/lxddns/internal/containername"
	"github.com/benaryorg/lxddns/internal/lxderr"
)

// RemoteQuery is the capability the engine is parametric over: given a
// validated container
// name, return its bound addresses. A nil slice with a nil error means
// "no peer claims this container"; a non-nil (possibly empty) slice means
// a peer answered. An error means the transport is tainted.
type RemoteQuery func(ctx context.Context, name containername.Name) ([]netip.Addr, error)

// Engine is the PowerDNS remote-backend protocol engine: it classifies
// inbound lookups and, for smart classifications, drives a RemoteQuery.
type Engine struct {
	Domain       string
	Hostmaster   string
	TTL          TtlConfig
	Query        RemoteQuery
	QueryTimeout time.Duration
}

// DefaultQueryTimeout is the ceiling the engine wraps every RemoteQuery
// invocation in.
const DefaultQueryTimeout = 4500 * time.Millisecond

// NewEngine builds an Engine with the default query timeout and TTLs;
// callers may override fields afterward.
func NewEngine(domain, hostmaster string, query RemoteQuery) *Engine {
	return &Engine{
		Domain:       domain,
		Hostmaster:   hostmaster,
		TTL:          DefaultTTLs(),
		Query:        query,
		QueryTimeout: DefaultQueryTimeout,
	}
}

// Respond decodes one wire-protocol line and returns the line to write in
// response. A non-nil error means the stream must be torn down: either the
// input failed to parse, or the RemoteQuery backing a Smart lookup
// tainted (lxderr.MessageQueueTaint). No line is written in that case.
func (e *Engine) Respond(ctx context.Context, line []byte) ([]byte, error) {
	req, err := decodeRequest(line)
	if err != nil {
		return nil, err
	}

	switch req.Method {
	case "initialize":
		return encodeInitializeOK(), nil
	case "lookup":
		records, err := e.respondLookup(ctx, req.Parameters)
		if err != nil {
			return nil, err
		}
		return encodeRecords(records), nil
	default:
		return encodeUnknown(), nil
	}
}

func (e *Engine) respondLookup(ctx context.Context, params queryParameters) ([]ResponseRecord, error) {
	classification := Classify(params.QName, params.QType, e.Domain)

	switch classification.Kind {
	case KindSoa:
		return []ResponseRecord{soaRecord(params.QName, e.Domain, e.Hostmaster, e.TTL.SoaTTL)}, nil
	case KindNxdomain:
		return nil, nil
	case KindAcme:
		return []ResponseRecord{nsRecord(params.QName, classification.Target, e.TTL.NsTTL)}, nil
	case KindSmartAAAA:
		return e.respondSmartAAAA(ctx, params.QName, classification.Container)
	default:
		return nil, nil
	}
}

func (e *Engine) respondSmartAAAA(ctx context.Context, qname, container string) ([]ResponseRecord, error) {
	name, err := containername.Parse(container)
	if err != nil {
		// Classify already validated this; this branch is unreachable in
		// practice but kept so the error never silently resolves to SOA.
		return nil, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.QueryTimeout)
	defer cancel()

	addrs, err := e.Query(queryCtx, name)
	if err != nil {
		if errors.Is(err, queryCtx.Err()) {
			// The ceiling elapsed (or the stream's own ctx was torn
			// down) before any transport genuinely failed: graceful
			// NXDOMAIN-equivalent, not a taint.
			addrs, err = nil, nil
		} else {
			return nil, lxderr.MessageQueueTaint.New(err)
		}
	}

	if len(addrs) == 0 {
		// Absent, or present with no addresses: both are NODATA-equivalent
		// at this layer, surfaced as the same SOA fallback.
		return []ResponseRecord{soaRecord(qname, e.Domain, e.Hostmaster, e.TTL.SoaTTL)}, nil
	}

	records := make([]ResponseRecord, 0, len(addrs))
	for _, addr := range addrs {
		records = append(records, aaaaRecord(qname, addr.String(), e.TTL.AaaaTTL))
	}
	return records, nil
}
