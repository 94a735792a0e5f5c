package diff

// Updater receives list notifications, the way a list view adapter does.
type Updater interface {
	Inserted(pos, count int)
	Removed(pos, count int)
	Moved(from, to int)
	Changed(pos, count int)
}

// Dispatch replays a script onto u, merging runs of adjacent inserts,
// removes and changes into ranges.
func Dispatch(s Script, u Updater) {
	for i := 0; i < len(s); {
		op := s[i]
		if op.Kind == Move {
			u.Moved(op.Pos, op.ToPos)
			i++
			continue
		}

		start, count := op.Pos, 1
		j := i + 1
		for ; j < len(s) && s[j].Kind == op.Kind && adjacent(op.Kind, start, count, s[j].Pos); j++ {
			if op.Kind == Remove {
				start = s[j].Pos
			}
			count++
		}

		switch op.Kind {
		case Remove:
			u.Removed(start, count)
		case Insert:
			u.Inserted(start, count)
		case Change:
			u.Changed(start, count)
		}
		i = j
	}
}

// adjacent reports whether pos extends the range [start, start+count).
// Removes are emitted back to front, so they grow downwards.
func adjacent(kind Kind, start, count, pos int) bool {
	if kind == Remove {
		return pos == start-1
	}
	return pos == start+count
}
