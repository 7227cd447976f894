package rules

// Catalog is the immutable set of enabled rules for one batch run, keyed by
// normalized event type. It is built once at batch start and shared by
// reference; nothing mutates it afterwards, so concurrent passes may read it
// without locking.
type Catalog struct {
	byEvent map[string]*Rule
}

// NewCatalog builds a catalog from a rule list. Disabled rules are dropped
// here so dispatch logic never sees them. When two enabled rules share an
// event type the first one wins, matching load order from the rule store.
func NewCatalog(list []Rule) *Catalog {
	byEvent := make(map[string]*Rule, len(list))
	for i := range list {
		r := list[i]
		if !r.Enabled {
			continue
		}
		key := NormalizeEventType(r.EventType)
		if _, exists := byEvent[key]; exists {
			continue
		}
		byEvent[key] = &r
	}
	return &Catalog{byEvent: byEvent}
}

// Resolve returns the rule for the given event type, after normalization.
func (c *Catalog) Resolve(eventType string) (*Rule, bool) {
	r, ok := c.byEvent[NormalizeEventType(eventType)]
	return r, ok
}

// Len returns the number of enabled rules in the catalog.
func (c *Catalog) Len() int {
	return len(c.byEvent)
}
