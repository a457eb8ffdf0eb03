package services

import (
	"errors"
	"fmt"

	"coderoom/internal/models"
)

const RootDirectoryID = "root"

var (
	ErrNodeNotFound  = errors.New("file tree node not found")
	ErrWrongNodeType = errors.New("file tree node has the wrong type")
	ErrInvalidNode   = errors.New("invalid file tree node")
)

type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationRename MutationKind = "rename"
	MutationDelete MutationKind = "delete"
)

// FileMutation describes one change to a room's file tree. ID addresses
// the node being changed, or the parent directory for MutationCreate.
type FileMutation struct {
	Kind     MutationKind
	NodeType models.FileType
	ID       string
	Node     *models.FileNode
	Content  string
	Children []*models.FileNode
	Name     string
}

func newRootDirectory() *models.FileNode {
	return &models.FileNode{
		ID:       RootDirectoryID,
		Name:     "root",
		Type:     models.FileTypeDirectory,
		Children: []*models.FileNode{},
	}
}

// applyMutation changes tree in place. Creating a node whose id already
// exists under the parent replaces it.
func applyMutation(tree *models.FileNode, m FileMutation) error {
	switch m.Kind {
	case MutationCreate:
		if m.Node == nil || m.Node.ID == "" {
			return ErrInvalidNode
		}
		parent := tree
		if m.ID != "" && m.ID != tree.ID {
			parent = findNode(tree, m.ID)
		}
		if parent == nil {
			return fmt.Errorf("parent %q: %w", m.ID, ErrNodeNotFound)
		}
		if parent.Type != models.FileTypeDirectory {
			return fmt.Errorf("parent %q: %w", m.ID, ErrWrongNodeType)
		}
		node := cloneNode(m.Node)
		for i, child := range parent.Children {
			if child.ID == node.ID {
				parent.Children[i] = node
				return nil
			}
		}
		parent.Children = append(parent.Children, node)
		return nil

	case MutationUpdate:
		node, err := lookupTyped(tree, m.ID, m.NodeType)
		if err != nil {
			return err
		}
		if node.Type == models.FileTypeFile {
			node.Content = m.Content
		} else {
			node.Children = cloneChildren(m.Children)
		}
		return nil

	case MutationRename:
		if m.Name == "" {
			return ErrInvalidNode
		}
		node, err := lookupTyped(tree, m.ID, m.NodeType)
		if err != nil {
			return err
		}
		node.Name = m.Name
		return nil

	case MutationDelete:
		if m.ID == tree.ID {
			return fmt.Errorf("cannot delete the root directory: %w", ErrInvalidNode)
		}
		if _, err := lookupTyped(tree, m.ID, m.NodeType); err != nil {
			return err
		}
		removeNode(tree, m.ID)
		return nil
	}
	return fmt.Errorf("unknown mutation %q", m.Kind)
}

func lookupTyped(tree *models.FileNode, id string, want models.FileType) (*models.FileNode, error) {
	node := findNode(tree, id)
	if node == nil {
		return nil, fmt.Errorf("node %q: %w", id, ErrNodeNotFound)
	}
	if want != "" && node.Type != want {
		return nil, fmt.Errorf("node %q is a %s: %w", id, node.Type, ErrWrongNodeType)
	}
	return node, nil
}

func findNode(node *models.FileNode, id string) *models.FileNode {
	if node == nil {
		return nil
	}
	if node.ID == id {
		return node
	}
	for _, child := range node.Children {
		if found := findNode(child, id); found != nil {
			return found
		}
	}
	return nil
}

func removeNode(node *models.FileNode, id string) bool {
	for i, child := range node.Children {
		if child.ID == id {
			node.Children = append(node.Children[:i], node.Children[i+1:]...)
			return true
		}
		if removeNode(child, id) {
			return true
		}
	}
	return false
}

func cloneNode(node *models.FileNode) *models.FileNode {
	if node == nil {
		return nil
	}
	cp := *node
	cp.Children = cloneChildren(node.Children)
	return &cp
}

func cloneChildren(children []*models.FileNode) []*models.FileNode {
	if children == nil {
		return nil
	}
	out := make([]*models.FileNode, 0, len(children))
	for _, c := range children {
		out = append(out, cloneNode(c))
	}
	return out
}
