package viewer

// Reconciler applies dismiss and read actions to a DedupEngine's list. Each
// method changes local state at once and returns the ids the caller must
// send to MarkRead; an empty result means there is nothing to send.
type Reconciler struct {
	engine *DedupEngine
}

func NewReconciler(engine *DedupEngine) *Reconciler {
	return &Reconciler{engine: engine}
}

// Dismiss drops one entry from the list.
func (r *Reconciler) Dismiss(messageID string) []string {
	i := r.engine.index(messageID)
	if i < 0 {
		return nil
	}
	e := r.engine
	e.entries = append(e.entries[:i:i], e.entries[i+1:]...)
	return []string{messageID}
}

// DismissAll empties the list and returns every id for one batched MarkRead.
func (r *Reconciler) DismissAll() []string {
	e := r.engine
	if len(e.entries) == 0 {
		return nil
	}
	ids := make([]string, 0, len(e.entries))
	for _, en := range e.entries {
		ids = append(ids, en.MessageID)
	}
	e.entries = nil
	return ids
}

// OpenPanel marks every unread entry read locally. Entries stay listed.
func (r *Reconciler) OpenPanel() []string {
	var ids []string
	for i := range r.engine.entries {
		en := &r.engine.entries[i]
		if en.Read {
			continue
		}
		en.Read = true
		ids = append(ids, en.MessageID)
	}
	return ids
}

// Release undoes the local side of a MarkRead that failed. Dismissed ids
// leave the notified set and turn quiet, so the next poll lists them again
// without alerting. Ids still listed get their unread badge back.
func (r *Reconciler) Release(ids []string) {
	e := r.engine
	for _, id := range ids {
		if i := e.index(id); i >= 0 {
			e.entries[i].Read = false
			continue
		}
		if _, ok := e.notified[id]; ok {
			delete(e.notified, id)
			e.quiet[id] = struct{}{}
		}
	}
}
