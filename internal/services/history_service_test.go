package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"coderoom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryService(nil, 500, time.Second)
	room := newRoom("room1", "Room One", "", "alice", time.Now())

	stored, err := h.AppendMessage(ctx, room, "alice", "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "alice", stored.Username)
	_, err = time.Parse(time.RFC3339, stored.Timestamp)
	assert.NoError(t, err)

	history := h.ChatHistory(room)
	require.Len(t, history, 1)
	assert.Equal(t, stored, history[0])

	_, err = h.AppendMessage(ctx, room, "alice", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestChatHistoryDropsOldest(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryService(nil, 3, time.Second)
	room := newRoom("room1", "Room One", "", "alice", time.Now())

	for i := 0; i < 5; i++ {
		_, err := h.AppendMessage(ctx, room, "alice", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	history := h.ChatHistory(room)
	require.Len(t, history, 3)
	assert.Equal(t, "m2", history[0].Message)
	assert.Equal(t, "m4", history[2].Message)
}

func TestFileTreeMutations(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	h := NewHistoryService(db, 500, time.Second)
	room := newRoom("room1", "Room One", "", "alice", time.Now())
	require.NoError(t, db.SaveRoom(ctx, room.record()))

	src := &models.FileNode{ID: "d1", Name: "src", Type: models.FileTypeDirectory}
	require.NoError(t, h.UpdateFileTree(ctx, room, FileMutation{Kind: MutationCreate, ID: RootDirectoryID, Node: src}))

	file := &models.FileNode{ID: "f1", Name: "main.go", Type: models.FileTypeFile}
	require.NoError(t, h.UpdateFileTree(ctx, room, FileMutation{Kind: MutationCreate, ID: "d1", Node: file}))

	require.NoError(t, h.UpdateFileTree(ctx, room, FileMutation{
		Kind: MutationUpdate, NodeType: models.FileTypeFile, ID: "f1", Content: "package main",
	}))
	content, ok := h.FileContent(room, "f1")
	require.True(t, ok)
	assert.Equal(t, "package main", content)

	require.NoError(t, h.UpdateFileTree(ctx, room, FileMutation{
		Kind: MutationRename, NodeType: models.FileTypeFile, ID: "f1", Name: "app.go",
	}))
	tree := h.FileTree(room)
	require.Len(t, tree.Children, 1)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, "app.go", tree.Children[0].Children[0].Name)

	err := h.UpdateFileTree(ctx, room, FileMutation{Kind: MutationRename, NodeType: models.FileTypeDirectory, ID: "f1", Name: "x"})
	assert.ErrorIs(t, err, ErrWrongNodeType)
	err = h.UpdateFileTree(ctx, room, FileMutation{Kind: MutationCreate, ID: "f1", Node: &models.FileNode{ID: "f2"}})
	assert.ErrorIs(t, err, ErrWrongNodeType)
	err = h.UpdateFileTree(ctx, room, FileMutation{Kind: MutationUpdate, ID: "nope"})
	assert.ErrorIs(t, err, ErrNodeNotFound)
	err = h.UpdateFileTree(ctx, room, FileMutation{Kind: MutationDelete, ID: RootDirectoryID})
	assert.ErrorIs(t, err, ErrInvalidNode)

	require.NoError(t, h.UpdateFileTree(ctx, room, FileMutation{Kind: MutationDelete, NodeType: models.FileTypeDirectory, ID: "d1"}))
	_, ok = h.FileContent(room, "f1")
	assert.False(t, ok)

	rec, err := db.GetRoom(ctx, "room1")
	require.NoError(t, err)
	require.NotNil(t, rec.FileTree)
	assert.Empty(t, rec.FileTree.Children)
}

func TestFileTreeCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryService(nil, 500, time.Second)
	room := newRoom("room1", "Room One", "", "alice", time.Now())

	incoming := &models.FileNode{ID: RootDirectoryID, Name: "root", Type: models.FileTypeDirectory, Children: []*models.FileNode{
		{ID: "f1", Name: "a.txt", Type: models.FileTypeFile, Content: "a"},
	}}
	require.NoError(t, h.ReplaceFileTree(ctx, room, incoming))
	incoming.Children[0].Content = "changed"

	tree := h.FileTree(room)
	tree.Children[0].Name = "mutated"

	content, ok := h.FileContent(room, "f1")
	require.True(t, ok)
	assert.Equal(t, "a", content)
	assert.Equal(t, "a.txt", h.FileTree(room).Children[0].Name)

	assert.ErrorIs(t, h.ReplaceFileTree(ctx, room, &models.FileNode{ID: "f", Type: models.FileTypeFile}), ErrInvalidNode)
}

func TestDrawingSnapshot(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryService(nil, 500, time.Second)
	room := newRoom("room1", "Room One", "", "alice", time.Now())

	assert.Nil(t, h.Drawing(room))
	assert.False(t, h.SetDrawing(ctx, room, json.RawMessage("null")))

	assert.True(t, h.SetDrawing(ctx, room, json.RawMessage(`{"shapes":[1]}`)))
	assert.True(t, h.SetDrawing(ctx, room, json.RawMessage(`{"shapes":[1,2]}`)))
	assert.JSONEq(t, `{"shapes":[1,2]}`, string(h.Drawing(room)))
}
