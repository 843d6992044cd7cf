// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

// Filter is the declarative predicate that selects which record families
// and which subrecord keys within them are retained during parsing (spec
// §1, §4.4). The default filter content — which signatures are considered
// translatable by default — is configuration owned by the caller, not this
// module (spec §1 non-goals).
type Filter struct {
	// allowAll, when true, keeps every record family regardless of config.
	allowAll bool
	config   map[string]map[string]struct{}
}

// InitFilter builds a Filter from a record-signature to subrecord-signature
// mapping. An empty subrecord list for a record signature means "keep every
// subrecord under this record family" (spec §4.4).
func InitFilter(config map[string][]string) Filter {
	f := Filter{config: make(map[string]map[string]struct{}, len(config))}
	for recSig, subSigs := range config {
		set := make(map[string]struct{}, len(subSigs))
		for _, s := range subSigs {
			set[s] = struct{}{}
		}
		f.config[recSig] = set
	}
	return f
}

// AllowAllFilter returns a Filter that keeps every record and every
// subrecord, useful for diagnostics and for the fuzz harness.
func AllowAllFilter() Filter {
	return Filter{allowAll: true}
}

// shouldKeepRecord reports whether sig is a record family of interest
// (spec §4.4).
func (f Filter) shouldKeepRecord(sig string) bool {
	if f.allowAll {
		return true
	}
	_, ok := f.config[sig]
	return ok
}

// shouldKeepSubrecord reports whether subSig is retained within records of
// family recordSig (spec §4.4).
func (f Filter) shouldKeepSubrecord(recordSig, subSig string) bool {
	if f.allowAll {
		return true
	}
	set, ok := f.config[recordSig]
	if !ok {
		return false
	}
	if len(set) == 0 {
		return true
	}
	_, keep := set[subSig]
	return keep
}
