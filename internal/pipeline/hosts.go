package pipeline

// HostCursor is an independent round-robin position over the configured
// hosts. Each caller context keeps its own cursor so one caller never
// perturbs another's rotation; a cursor is not safe for concurrent use by
// multiple goroutines — obtain one per goroutine instead.
type HostCursor struct {
	n uint64
}

// HostCursor returns a fresh, independent round-robin cursor.
func (p *Pipeline) HostCursor() *HostCursor {
	return &HostCursor{}
}

// nextHost picks the next host for the given cursor, or via the shared
// pipeline-wide counter when cursor is nil. With no hosts configured it
// returns "".
func (p *Pipeline) nextHost(cursor *HostCursor) string {
	if len(p.hosts) == 0 {
		return ""
	}

	var n uint64
	if cursor != nil {
		n = cursor.n
		cursor.n++
	} else {
		n = p.hostIdx.Add(1) - 1
	}

	return p.hosts[n%uint64(len(p.hosts))]
}
