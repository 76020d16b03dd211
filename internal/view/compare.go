package view

import (
	"context"

	"github.com/hpungsan/quill/internal/document"
	"github.com/hpungsan/quill/internal/filehandle"
	"github.com/hpungsan/quill/internal/widget"
)

// CompareModel returns the session's compare buffer.
func (c *Coordinator) CompareModel() widget.Model { return c.compareModel }

// Compare describes the compare buffer.
func (c *Coordinator) Compare() CompareInfo {
	c.cmu.Lock()
	name := c.compareName
	c.cmu.Unlock()
	content := c.compareModel.Value()
	return CompareInfo{
		Name:     name,
		Language: c.compareModel.Language(),
		Content:  content,
		Lines:    c.compareModel.LineCount(),
		Empty:    name == "" && content == "",
	}
}

// CompareHandle returns the file the compare buffer was loaded from, if any.
func (c *Coordinator) CompareHandle() filehandle.Handle {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	return c.compareHandle
}

// OnCompareChange registers fn to run after each compare mutation.
func (c *Coordinator) OnCompareChange(fn func(CompareInfo)) func() {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	id := c.nextLID
	c.nextLID++
	c.listeners[id] = fn
	return func() {
		c.cmu.Lock()
		delete(c.listeners, id)
		c.cmu.Unlock()
	}
}

// LoadCompare reads h into the compare buffer.
func (c *Coordinator) LoadCompare(ctx context.Context, h filehandle.Handle) error {
	content, err := h.Read(ctx)
	if err != nil {
		return err
	}
	c.mutateCompare(compareRequest{content: content, name: h.Name(), handle: h})
	return nil
}

// SetCompare replaces the compare buffer content and display name.
func (c *Coordinator) SetCompare(content, name string) {
	c.mutateCompare(compareRequest{content: content, name: name})
}

// ClearCompare empties the compare buffer.
func (c *Coordinator) ClearCompare() {
	c.mutateCompare(compareRequest{})
}

// mutateCompare is the single mutation path of the compare buffer. A request
// made while another is being applied (for example from a listener or a
// plugin callback) is queued and applied right after; the last queued
// request wins.
func (c *Coordinator) mutateCompare(req compareRequest) {
	c.cmu.Lock()
	if c.mutating {
		c.queued = &req
		c.cmu.Unlock()
		return
	}
	c.mutating = true
	c.cmu.Unlock()

	for {
		c.applyCompare(req)

		c.cmu.Lock()
		if c.queued == nil {
			c.mutating = false
			c.cmu.Unlock()
			return
		}
		req = *c.queued
		c.queued = nil
		c.cmu.Unlock()
	}
}

func (c *Coordinator) applyCompare(req compareRequest) {
	c.compareModel.SetValue(req.content)
	c.compareModel.SetLanguage(document.InferLanguage(req.name))

	c.cmu.Lock()
	c.compareName = req.name
	c.compareHandle = req.handle
	fns := make([]func(CompareInfo), 0, len(c.listeners))
	for i := 0; i < c.nextLID; i++ {
		if fn, ok := c.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.cmu.Unlock()

	if c.IsDiffMode() {
		c.bindDiff(c.session.Active())
	}

	info := c.Compare()
	for _, fn := range fns {
		fn(info)
	}
}
