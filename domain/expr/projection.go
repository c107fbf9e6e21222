package expr

import "pretenderdb/domain/attr"

// Apply restricts an item to the projection's paths. Paths navigating into
// lists and maps preserve the surrounding structure; paths that do not
// resolve contribute nothing.
func (p *Projection) Apply(item attr.Item) attr.Item {
	out := attr.Item{}
	for _, path := range p.Paths {
		v, ok := path.Resolve(item)
		if !ok {
			continue
		}
		// Set cannot fail here: every projection path starts with a field
		// and intermediate containers are created as needed.
		_ = path.Set(out, v.Clone())
	}
	return out
}
