// Package threads assembles flat post records into nested reply trees
package threads

import (
	"sort"

	"github.com/blindspot/blindspot/common"
)

// MaxDepth is the default depth, past which replies are not rendered
const MaxDepth = 10

// Node is a post with its direct replies attached. Nodes are rebuilt from
// scratch on every assembly and never stored.
type Node struct {
	common.Post
	Replies []*Node `json:"replies"`
}

// TotalReplies returns the number of descendants in the node's subtree
func (n *Node) TotalReplies() (total int) {
	for _, r := range n.Replies {
		total += 1 + r.TotalReplies()
	}
	return
}

// Assemble the complete post set of one board into reply trees. Roots are
// returned in input order. Replies are ordered oldest first, keeping input
// order on equal timestamps. Posts with a missing parent and posts in parent
// cycles are never attached. Of posts sharing an ID only the first is used.
func Assemble(posts []common.Post) []*Node {
	var (
		index = make(map[string]int, len(posts))
		kept  = make([]bool, len(posts))
	)
	for i := range posts {
		if _, ok := index[posts[i].ID]; ok {
			continue
		}
		index[posts[i].ID] = i
		kept[i] = true
	}

	children := make([][]int, len(posts))
	for i := range posts {
		p := &posts[i]
		if !kept[i] || p.IsRoot() {
			continue
		}
		if parent, ok := index[p.ParentID]; ok {
			children[parent] = append(children[parent], i)
		}
	}
	for _, ch := range children {
		if len(ch) < 2 {
			continue
		}
		sort.SliceStable(ch, func(i, j int) bool {
			return posts[ch[i]].Timestamp.Before(posts[ch[j]].Timestamp)
		})
	}

	visited := make([]bool, len(posts))
	var build func(i int) *Node
	build = func(i int) *Node {
		visited[i] = true
		n := &Node{
			Post:    posts[i],
			Replies: make([]*Node, 0, len(children[i])),
		}
		for _, j := range children[i] {
			if !visited[j] {
				n.Replies = append(n.Replies, build(j))
			}
		}
		return n
	}

	roots := make([]*Node, 0)
	for i := range posts {
		if kept[i] && posts[i].IsRoot() {
			roots = append(roots, build(i))
		}
	}
	return roots
}

// Find a node by ID in assembled trees. Returns nil, if none.
func Find(roots []*Node, id string) *Node {
	for _, n := range roots {
		if n.ID == id {
			return n
		}
		if found := Find(n.Replies, id); found != nil {
			return found
		}
	}
	return nil
}

// Count returns the number of nodes in the trees
func Count(roots []*Node) (total int) {
	for _, n := range roots {
		total += 1 + n.TotalReplies()
	}
	return
}
