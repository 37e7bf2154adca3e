package db

import (
	"hash/fnv"
	"strconv"
)

// Scope is the tracking boundary for keywords, positions, and daily
// totals: either the operator's own site (global) or one client site.
type Scope struct {
	SiteID *int64
}

// GlobalScope is the operator's own site.
func GlobalScope() Scope {
	return Scope{}
}

// SiteScope is one client site.
func SiteScope(siteID int64) Scope {
	return Scope{SiteID: &siteID}
}

func (s Scope) IsGlobal() bool {
	return s.SiteID == nil
}

func (s Scope) String() string {
	if s.SiteID == nil {
		return "global"
	}
	return "site:" + strconv.FormatInt(*s.SiteID, 10)
}

// lockKey maps the scope onto an advisory-lock object id. Postgres
// advisory locks take int4 keys, so the int64 id space is folded down
// with FNV-32a rather than a truncating cast. Collisions only cost a
// spurious busy result, never a missed exclusion.
func (s Scope) lockKey() int32 {
	if s.SiteID == nil {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(s.String()))
	return int32(h.Sum32() & 0x7fffffff)
}
