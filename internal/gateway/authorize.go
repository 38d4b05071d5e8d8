package gateway

import (
	"github.com/FabG/proxy-uc-genie/internal/policy"
)

// UseCaseHeader is the header carrying the tenant identifier.
const UseCaseHeader = "X-Use-Case-ID"

type DecisionKind int

const (
	Allow DecisionKind = iota
	RejectMissingHeader
	RejectUnauthorized
)

// Decision is the outcome of an authorization check. UseCase is populated
// when a presented identifier matched the allowlist.
type Decision struct {
	Kind    DecisionKind
	UseCase policy.UseCase
}

// bypassPaths skip authorization entirely: the service banner, docs, and the
// policy inspection/reload surface.
var bypassPaths = map[string]bool{
	"/":              true,
	"/docs":          true,
	"/openapi.json":  true,
	"/health":        true,
	"/config":        true,
	"/config/reload": true,
}

// Bypassed reports whether the path is exempt from authorization.
func Bypassed(path string) bool {
	return bypassPaths[path]
}

// Authorize checks a presented use case id against the snapshot. An absent
// and an empty header are equivalent. When the snapshot does not require the
// header, requests without one pass; a presented id is always validated.
func Authorize(snap *policy.Snapshot, useCaseID string) Decision {
	if useCaseID == "" {
		if snap.RequireHeader {
			return Decision{Kind: RejectMissingHeader}
		}
		return Decision{Kind: Allow}
	}

	uc, ok := snap.Lookup(useCaseID)
	if !ok {
		return Decision{Kind: RejectUnauthorized}
	}
	return Decision{Kind: Allow, UseCase: uc}
}
