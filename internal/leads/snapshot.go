package leads

// Snapshot is an immutable view of the lead collection. Transitions return a
// new Snapshot and leave the receiver untouched.
type Snapshot struct {
	leads   []Lead
	version uint64
}

// NewSnapshot copies leads into a snapshot, dropping nil entries.
func NewSnapshot(leads []*Lead) Snapshot {
	s := Snapshot{leads: make([]Lead, 0, len(leads))}
	for _, l := range leads {
		if l != nil {
			s.leads = append(s.leads, *l)
		}
	}
	return s
}

// Version increases with every change applied through a Cache.
func (s Snapshot) Version() uint64 { return s.version }

func (s Snapshot) Len() int { return len(s.leads) }

// Leads returns copies of the leads in fetch order.
func (s Snapshot) Leads() []*Lead {
	out := make([]*Lead, len(s.leads))
	for i := range s.leads {
		l := s.leads[i]
		out[i] = &l
	}
	return out
}

// Get returns a copy of lead id.
func (s Snapshot) Get(id int64) (Lead, bool) {
	for _, l := range s.leads {
		if l.ID == id {
			return l, true
		}
	}
	return Lead{}, false
}

// Partition splits the snapshot into active and fallback pools.
func (s Snapshot) Partition() (active, fallback []*Lead) {
	return Partition(s.Leads())
}

func (s Snapshot) patch(id int64, fn func(*Lead)) Snapshot {
	for i := range s.leads {
		if s.leads[i].ID != id {
			continue
		}
		next := Snapshot{leads: make([]Lead, len(s.leads)), version: s.version}
		copy(next.leads, s.leads)
		fn(&next.leads[i])
		return next
	}
	return s
}

// Claim marks lead id as held by the viewer. Only ActiveLead changes.
func (s Snapshot) Claim(id int64) Snapshot {
	return s.patch(id, func(l *Lead) { l.ActiveLead = true })
}

// SetStatus replaces the workflow status of lead id. Only Status changes.
func (s Snapshot) SetStatus(id int64, status string) Snapshot {
	return s.patch(id, func(l *Lead) { l.Status = status })
}

// Cancel changes nothing locally; the refetch that follows a cancel is the
// authority on where the lead went.
func (s Snapshot) Cancel(id int64) Snapshot {
	return s
}

// Transition derives a new snapshot from the current one.
type Transition func(Snapshot) Snapshot

func ClaimTransition(id int64) Transition {
	return func(s Snapshot) Snapshot { return s.Claim(id) }
}

func SetStatusTransition(id int64, status string) Transition {
	return func(s Snapshot) Snapshot { return s.SetStatus(id, status) }
}

func CancelTransition(id int64) Transition {
	return func(s Snapshot) Snapshot { return s.Cancel(id) }
}
