// Package diff computes edit scripts between two versions of an ordered list
// so that a displayed list can be patched instead of redrawn.
package diff

import (
	"fmt"
	"slices"
)

// Item is a record with a stable identity and comparable displayed content.
type Item[T any] interface {
	Identity() int64
	SameContent(other T) bool
}

// Kind is the type of a patch operation.
type Kind int

const (
	Remove Kind = iota + 1
	Insert
	Move
	Change
)

func (k Kind) String() string {
	switch k {
	case Remove:
		return "remove"
	case Insert:
		return "insert"
	case Move:
		return "move"
	case Change:
		return "change"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Op is a single patch operation. Pos and ToPos are positions in the list as
// it stands when the operation is applied; OldIndex and NewIndex point into
// the two input sequences (-1 when not applicable).
type Op struct {
	Kind     Kind
	Pos      int
	ToPos    int
	OldIndex int
	NewIndex int
}

func (o Op) String() string {
	if o.Kind == Move {
		return fmt.Sprintf("move %d->%d", o.Pos, o.ToPos)
	}
	return fmt.Sprintf("%s %d", o.Kind, o.Pos)
}

// Script is an ordered list of operations. Applying every operation in order
// to the old sequence yields the new sequence.
type Script []Op

// Empty reports whether the two sequences were identical.
func (s Script) Empty() bool {
	return len(s) == 0
}

// Count returns the number of operations of the given kind.
func (s Script) Count(kind Kind) int {
	n := 0
	for _, op := range s {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Compute returns the edit script that turns oldItems into newItems.
// Items are matched by Identity; matched items whose content differs produce
// a Change. Neither input is modified.
//
// Operations are ordered: removes (descending), moves, inserts (ascending),
// changes (ascending, in final positions).
func Compute[T Item[T]](oldItems, newItems []T) Script {
	n, m := len(oldItems), len(newItems)

	pairs := commonSubsequence(n, m, func(i, j int) bool {
		return oldItems[i].Identity() == newItems[j].Identity()
	})

	oldMatch := filled(n, -1)
	newMatch := filled(m, -1)
	anchored := make([]bool, m)
	for _, p := range pairs {
		oldMatch[p.old] = p.new
		newMatch[p.new] = p.old
		anchored[p.new] = true
	}

	// Items present in both lists but outside the common subsequence move.
	unmatched := make(map[int64][]int)
	for i := range oldItems {
		if oldMatch[i] < 0 {
			id := oldItems[i].Identity()
			unmatched[id] = append(unmatched[id], i)
		}
	}
	for j := range newItems {
		if newMatch[j] >= 0 {
			continue
		}
		id := newItems[j].Identity()
		if queue := unmatched[id]; len(queue) > 0 {
			i := queue[0]
			unmatched[id] = queue[1:]
			oldMatch[i] = j
			newMatch[j] = i
		}
	}

	var script Script

	for i := n - 1; i >= 0; i-- {
		if oldMatch[i] < 0 {
			script = append(script, Op{Kind: Remove, Pos: i, ToPos: -1, OldIndex: i, NewIndex: -1})
		}
	}

	// cur holds the new index of every surviving item in its current position.
	cur := make([]int, 0, n)
	for i := range oldItems {
		if oldMatch[i] >= 0 {
			cur = append(cur, oldMatch[i])
		}
	}

	prevMatched := -1
	for j := range newItems {
		if newMatch[j] < 0 {
			continue
		}
		if !anchored[j] {
			from := slices.Index(cur, j)
			cur = slices.Delete(cur, from, from+1)
			to := 0
			if prevMatched >= 0 {
				to = slices.Index(cur, prevMatched) + 1
			}
			cur = slices.Insert(cur, to, j)
			if from != to {
				script = append(script, Op{Kind: Move, Pos: from, ToPos: to, OldIndex: newMatch[j], NewIndex: j})
			}
		}
		prevMatched = j
	}

	for j := range newItems {
		if newMatch[j] < 0 {
			script = append(script, Op{Kind: Insert, Pos: j, ToPos: -1, OldIndex: -1, NewIndex: j})
		}
	}

	for j := range newItems {
		if i := newMatch[j]; i >= 0 && !oldItems[i].SameContent(newItems[j]) {
			script = append(script, Op{Kind: Change, Pos: j, ToPos: -1, OldIndex: i, NewIndex: j})
		}
	}

	return script
}

// Apply returns a copy of oldItems with the script applied. Inserted and
// changed elements are taken from newItems.
func Apply[T any](oldItems, newItems []T, s Script) []T {
	out := slices.Clone(oldItems)
	for _, op := range s {
		switch op.Kind {
		case Remove:
			out = slices.Delete(out, op.Pos, op.Pos+1)
		case Insert:
			out = slices.Insert(out, op.Pos, newItems[op.NewIndex])
		case Move:
			item := out[op.Pos]
			out = slices.Delete(out, op.Pos, op.Pos+1)
			out = slices.Insert(out, op.ToPos, item)
		case Change:
			out[op.Pos] = newItems[op.NewIndex]
		}
	}
	return out
}

func filled(n, v int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = v
	}
	return s
}
