package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/karmafeed/internal/models"
)

func TestTree_TopLevel_NestsRepliesByParent(t *testing.T) {
	tree := NewTree([]models.Comment{
		comment(1, nil),
		comment(2, ptr(int64(1))),
		comment(3, ptr(int64(2))),
	})

	top := tree.TopLevel()
	require.Len(t, top, 1)
	assert.Equal(t, int64(1), top[0].ID)

	require.Len(t, top[0].Replies, 1)
	assert.Equal(t, int64(2), top[0].Replies[0].ID)

	require.Len(t, top[0].Replies[0].Replies, 1)
	assert.Equal(t, int64(3), top[0].Replies[0].Replies[0].ID)
	assert.Empty(t, top[0].Replies[0].Replies[0].Replies)

	depth, ok := tree.Depth(3)
	require.True(t, ok)
	assert.Equal(t, 2, depth)
	assert.Equal(t, 3, tree.Len())
}

func TestTree_Orphan_IsStoredButNeverTopLevel(t *testing.T) {
	tree := NewTree([]models.Comment{comment(1, nil)})

	assert.NotPanics(t, func() {
		tree.InsertReply(404, comment(5, nil))
	})

	assert.Equal(t, 2, tree.Len())
	top := tree.TopLevel()
	assert.Equal(t, []int64{1}, ids(top))
	assert.Empty(t, top[0].Replies)

	_, ok := tree.Depth(5)
	assert.False(t, ok)
}

func TestTree_InsertTopLevel_AppearsInNextView(t *testing.T) {
	tree := NewTree(nil)
	tree.InsertTopLevel(comment(10, nil))
	tree.InsertTopLevel(comment(11, ptr(int64(10)))) // parent is overridden

	assert.Equal(t, []int64{10, 11}, ids(tree.TopLevel()))
}

func TestTree_InsertReply_AcceptsAnyDepth(t *testing.T) {
	tree := NewTree([]models.Comment{comment(1, nil)})
	for id := int64(2); id <= 7; id++ {
		tree.InsertReply(id-1, comment(id, nil))
	}

	depth, ok := tree.Depth(7)
	require.True(t, ok)
	assert.Equal(t, 6, depth)

	node := tree.TopLevel()[0]
	for want := int64(2); want <= 7; want++ {
		require.Len(t, node.Replies, 1)
		node = node.Replies[0]
		assert.Equal(t, want, node.ID)
	}
}

func TestTree_ReplyOrder_FollowsInsertionOrder(t *testing.T) {
	tree := NewTree([]models.Comment{
		comment(1, nil),
		comment(4, ptr(int64(1))),
		comment(2, nil),
		comment(3, ptr(int64(1))),
	})
	tree.InsertReply(1, comment(9, nil))

	top := tree.TopLevel()
	assert.Equal(t, []int64{1, 2}, ids(top))
	assert.Equal(t, []int64{4, 3, 9}, ids(top[0].Replies))
}

func TestTree_Update(t *testing.T) {
	tree := NewTree([]models.Comment{
		comment(1, nil),
		comment(2, ptr(int64(1))),
		comment(3, ptr(int64(1))),
	})

	ok := tree.Update(2, models.CommentUpdate{LikeCount: ptr(4), IsLiked: ptr(true)})
	require.True(t, ok)

	got, _ := tree.Get(2)
	assert.Equal(t, 4, got.LikeCount)
	assert.True(t, got.IsLiked)

	// Siblings and structure are untouched.
	top := tree.TopLevel()
	assert.Equal(t, []int64{2, 3}, ids(top[0].Replies))
	assert.Equal(t, 0, top[0].Replies[1].LikeCount)

	// Partial update leaves the other field alone.
	tree.Update(2, models.CommentUpdate{LikeCount: ptr(5)})
	got, _ = tree.Get(2)
	assert.Equal(t, 5, got.LikeCount)
	assert.True(t, got.IsLiked)
}

func TestTree_Update_MissingIDIsNoop(t *testing.T) {
	tree := NewTree([]models.Comment{comment(1, nil)})
	before := tree.Flat()

	assert.False(t, tree.Update(99, models.CommentUpdate{LikeCount: ptr(7)}))
	assert.Equal(t, before, tree.Flat())
}

func TestNewTree_FlattensNestedPayload(t *testing.T) {
	reply := comment(2, ptr(int64(1)))
	nestedOnly := comment(3, nil) // parent implied by nesting
	reply.Replies = []models.Comment{nestedOnly}
	root := comment(1, nil)
	root.Replies = []models.Comment{reply}

	// The server may also list a reply at the top of the payload.
	tree := NewTree([]models.Comment{root, comment(2, ptr(int64(1)))})

	assert.Equal(t, 3, tree.Len())
	for _, c := range tree.Flat() {
		assert.Nil(t, c.Replies)
	}

	c3, ok := tree.Get(3)
	require.True(t, ok)
	require.NotNil(t, c3.Parent)
	assert.Equal(t, int64(2), *c3.Parent)

	top := tree.TopLevel()
	require.Len(t, top, 1)
	assert.Equal(t, []int64{2}, ids(top[0].Replies))
	assert.Equal(t, []int64{3}, ids(top[0].Replies[0].Replies))
}

func TestTree_TopLevel_ReturnsCopies(t *testing.T) {
	tree := NewTree([]models.Comment{comment(1, nil), comment(2, ptr(int64(1)))})

	top := tree.TopLevel()
	top[0].LikeCount = 100
	top[0].Replies[0].LikeCount = 100

	c1, _ := tree.Get(1)
	c2, _ := tree.Get(2)
	assert.Zero(t, c1.LikeCount)
	assert.Zero(t, c2.LikeCount)
}
