package session

import (
	"context"
	"fmt"

	"github.com/hpungsan/quill/internal/db"
	"github.com/hpungsan/quill/internal/document"
	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/filehandle"
)

// persistNow snapshots every open document, deletes records of documents
// that are no longer open and records the active pointer. Passes are
// serialized so a later snapshot is never overwritten by an earlier one.
// Individual failures are logged; the pass always runs to the end.
func (m *Manager) persistNow(ctx context.Context) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	snaps := make([]document.Snapshot, len(m.docs))
	for i, d := range m.docs {
		snaps[i] = d.Snapshot()
	}
	activeID := ""
	if m.active != nil {
		activeID = m.active.ID()
	}
	m.mu.Unlock()

	failed := 0
	open := make(map[string]bool, len(snaps))
	for i, snap := range snaps {
		open[snap.ID] = true
		if err := m.putSnapshot(ctx, snap, i); err != nil {
			failed++
		}
	}

	ids, err := m.store.ListDocumentIDs(ctx)
	if err != nil {
		m.log.WithError(err).Warn("failed to list stored documents")
		failed++
	}
	for _, id := range ids {
		if open[id] {
			continue
		}
		if err := m.store.DeleteDocument(ctx, id); err != nil {
			m.log.WithError(err).WithField("doc_id", id).Warn("failed to delete closed document record")
			failed++
		}
	}

	if m.pointer != nil && activeID != "" {
		if err := m.pointer.SetActiveDocumentID(ctx, activeID); err != nil {
			m.log.WithError(err).Warn("failed to record active document")
			failed++
		}
	}

	if failed > 0 {
		return errors.NewInternal(fmt.Errorf("%d session writes failed", failed))
	}
	return nil
}

// putSnapshot writes one record. A record that fails with its handle
// attached is retried once without it.
func (m *Manager) putSnapshot(ctx context.Context, snap document.Snapshot, position int) error {
	rec := &db.DocumentRecord{
		ID:       snap.ID,
		Name:     snap.Name,
		Language: snap.Language,
		Content:  snap.Content,
		Dirty:    snap.Dirty,
		Position: position,
	}
	log := m.log.WithField("doc_id", snap.ID)

	if snap.Handle != nil {
		encoded, err := filehandle.Encode(snap.Handle)
		if err != nil {
			log.WithError(err).Debug("persisting document without its file handle")
		} else {
			rec.Handle = &encoded
		}
	}

	err := m.store.PutDocument(ctx, rec)
	if err == nil {
		return nil
	}
	if rec.Handle == nil {
		log.WithError(err).Warn("failed to persist document")
		return err
	}

	log.WithError(err).Warn("failed to persist document with handle, retrying without it")
	rec.Handle = nil
	rec.UpdatedAt = 0
	if err := m.store.PutDocument(ctx, rec); err != nil {
		log.WithError(err).Warn("failed to persist document")
		return err
	}
	return nil
}

// Restore rebuilds the session from the store in persisted tab order and
// activates the previously active document, else the first one. Store
// failures are logged; a session that restores nothing gets one untitled
// document. Restore is meant for an empty session and is a no-op otherwise.
func (m *Manager) Restore(ctx context.Context) *document.Document {
	if len(m.Documents()) > 0 {
		return m.Active()
	}

	recs, err := m.store.ListDocuments(ctx)
	if err != nil {
		m.log.WithError(err).Warn("failed to read stored session, starting fresh")
		recs = nil
	}

	m.opMu.Lock()
	var events []Event
	for _, rec := range recs {
		opts := document.Options{
			ID:       rec.ID,
			Name:     rec.Name,
			Content:  rec.Content,
			Language: rec.Language,
			Dirty:    rec.Dirty,
		}
		if rec.Handle != nil {
			h, err := filehandle.Decode(m.resolver, *rec.Handle)
			if err != nil {
				m.log.WithError(err).WithField("doc_id", rec.ID).Warn("dropping unrestorable file handle")
			} else {
				opts.Handle = h
			}
		}
		d := m.createLocked(opts)
		events = append(events, Event{Kind: EventCreated, Document: d})
	}

	var target *document.Document
	m.mu.Lock()
	if m.pointer != nil {
		if i := m.indexLocked(m.pointer.ActiveDocumentID()); i >= 0 {
			target = m.docs[i]
		}
	}
	if target == nil && len(m.docs) > 0 {
		target = m.docs[0]
	}
	m.mu.Unlock()

	if target == nil {
		target = m.createLocked(document.Options{})
		events = append(events, Event{Kind: EventCreated, Document: target})
	}
	prev := m.switchToLocked(target, false)
	events = append(events, Event{Kind: EventActivated, Document: target, Previous: prev})
	m.opMu.Unlock()

	for _, ev := range events {
		m.notify(ev)
	}
	m.log.WithField("documents", len(m.Documents())).Debug("session restored")
	return target
}
