package feed

import (
	"sync"

	"github.com/sujalbistaa/karmafeed/internal/models"
)

// Tree is the comment collection of one post. Comments are kept flat, in
// server order, and indexed by id; reply subtrees are rebuilt from parent
// ids each time a view is requested.
//
// Depth limits are not enforced here. A reply to any existing (or
// missing) parent is stored; replies whose parent is absent are orphans
// and never surface in TopLevel.
type Tree struct {
	mu    sync.RWMutex
	flat  []models.Comment
	index map[int64]int
}

// NewTree builds a tree from the comments attached to a post. Nested
// replies are flattened pre-order; duplicate ids keep the first copy.
func NewTree(comments []models.Comment) *Tree {
	t := &Tree{index: make(map[int64]int)}
	t.flatten(comments, nil)
	return t
}

func (t *Tree) flatten(comments []models.Comment, parent *int64) {
	for _, c := range comments {
		replies := c.Replies
		c.Replies = nil
		if c.Parent == nil && parent != nil {
			p := *parent
			c.Parent = &p
		}
		id := c.ID
		if _, dup := t.index[id]; !dup {
			t.append(c)
		}
		t.flatten(replies, &id)
	}
}

func (t *Tree) append(c models.Comment) {
	c.Replies = nil
	t.index[c.ID] = len(t.flat)
	t.flat = append(t.flat, c)
}

// InsertTopLevel appends c as a top-level comment.
func (t *Tree) InsertTopLevel(c models.Comment) {
	c.Parent = nil
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insert(c)
}

// InsertReply appends c as a reply to parentID, whatever the parent's
// depth and whether or not the parent is present.
func (t *Tree) InsertReply(parentID int64, c models.Comment) {
	c.Parent = &parentID
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insert(c)
}

func (t *Tree) insert(c models.Comment) {
	if i, ok := t.index[c.ID]; ok {
		// Already known (e.g. a reload raced the create); refresh in place.
		c.Replies = nil
		t.flat[i] = c
		return
	}
	t.append(c)
}

// Update merges a shallow update into the comment with the given id.
// It reports false, changing nothing, if the id is absent.
func (t *Tree) Update(id int64, u models.CommentUpdate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[id]
	if !ok {
		return false
	}
	u.Apply(&t.flat[i])
	return true
}

// Get returns a copy of one comment without its replies.
func (t *Tree) Get(id int64) (models.Comment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[id]
	if !ok {
		return models.Comment{}, false
	}
	return t.flat[i], true
}

// Len is the size of the flat collection, orphans included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.flat)
}

// Flat returns a copy of the flat collection in insertion order.
func (t *Tree) Flat() []models.Comment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Comment, len(t.flat))
	copy(out, t.flat)
	return out
}

// Depth returns the number of ancestors of id (0 for top-level). ok is
// false if id is unknown or its ancestor chain does not reach a
// top-level comment.
func (t *Tree) Depth(id int64) (depth int, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, found := t.index[id]
	if !found {
		return 0, false
	}
	c := t.flat[i]
	for c.Parent != nil {
		if depth >= len(t.flat) {
			return 0, false
		}
		pi, found := t.index[*c.Parent]
		if !found {
			return 0, false
		}
		depth++
		c = t.flat[pi]
	}
	return depth, true
}

// TopLevel returns the top-level comments, each carrying its full reply
// subtree. Sibling order is flat-collection order.
func (t *Tree) TopLevel() []models.Comment {
	t.mu.RLock()
	defer t.mu.RUnlock()

	children := make(map[int64][]int, len(t.flat))
	var roots []int
	for i, c := range t.flat {
		if c.Parent == nil {
			roots = append(roots, i)
			continue
		}
		children[*c.Parent] = append(children[*c.Parent], i)
	}

	out := make([]models.Comment, 0, len(roots))
	for _, i := range roots {
		out = append(out, t.build(i, children))
	}
	return out
}

func (t *Tree) build(i int, children map[int64][]int) models.Comment {
	c := t.flat[i]
	kids := children[c.ID]
	if len(kids) == 0 {
		c.Replies = []models.Comment{}
		return c
	}
	c.Replies = make([]models.Comment, 0, len(kids))
	for _, k := range kids {
		c.Replies = append(c.Replies, t.build(k, children))
	}
	return c
}
