package nostr

// Filter describes a subscription request (NIP-01). Zero values mean
// "no constraint" for that dimension.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	ETags   []string // "#e" tag values
	PTags   []string // "#p" tag values
	Since   *int64
	Until   *int64
	Limit   int
}

// ToReq converts the filter to the wire-format object sent inside a
// ["REQ", subID, filter] frame. Only set fields are included so relays
// never see empty-list constraints.
func (f Filter) ToReq() map[string]interface{} {
	req := map[string]interface{}{}
	if len(f.IDs) > 0 {
		req["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		req["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		req["kinds"] = f.Kinds
	}
	if len(f.ETags) > 0 {
		req["#e"] = f.ETags
	}
	if len(f.PTags) > 0 {
		req["#p"] = f.PTags
	}
	if f.Since != nil {
		req["since"] = *f.Since
	}
	if f.Until != nil {
		req["until"] = *f.Until
	}
	if f.Limit > 0 {
		req["limit"] = f.Limit
	}
	return req
}

// Matches reports whether the event satisfies every constraint of the
// filter. Used by views to re-check locally what a relay claimed matched.
func (f Filter) Matches(ev *Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, ev.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if k == ev.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.ETags) > 0 && !tagIntersects(ev.Tags, "e", f.ETags) {
		return false
	}
	if len(f.PTags) > 0 && !tagIntersects(ev.Tags, "p", f.PTags) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func tagIntersects(tags [][]string, name string, values []string) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name && containsString(values, tag[1]) {
			return true
		}
	}
	return false
}
