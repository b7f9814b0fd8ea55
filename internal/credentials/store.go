package credentials

// Store persists named sections of provider defaults.
type Store interface {
	// Defaults returns the stored section. A missing section is empty, not an error.
	Defaults(section string) (Section, error)

	// Save merges values into the section and persists the result.
	Save(section string, values Section) error

	// Name returns the name of the store for logging
	Name() string
}

// document is the on-disk layout shared by the file and KV stores.
type document map[string]Section

func (d document) section(name string) Section {
	out := Section{}
	for k, v := range d[name] {
		out[k] = v
	}
	return out
}

func (d document) merge(name string, values Section) {
	if d[name] == nil {
		d[name] = Section{}
	}
	for k, v := range values {
		if v == "" {
			delete(d[name], k)
			continue
		}
		d[name][k] = v
	}
}
