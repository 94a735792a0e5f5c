package diff

// pair links an old index to a new index that share an identity.
type pair struct {
	old, new int
}

// commonSubsequence returns the index pairs of a longest common subsequence
// of two sequences of lengths n and m, in ascending order. It is the greedy
// forward algorithm from Myers' "An O(ND) Difference Algorithm", with the V
// array of every round kept for the backtrack.
func commonSubsequence(n, m int, eq func(i, j int) bool) []pair {
	total := n + m
	if total == 0 {
		return nil
	}

	offset := total
	v := make([]int, 2*total+2)
	var trace [][]int

search:
	for d := 0; d <= total; d++ {
		trace = append(trace, append([]int(nil), v...))

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && eq(x, y) {
				x++
				y++
			}
			v[offset+k] = x

			if x >= n && y >= m {
				break search
			}
		}
	}

	var pairs []pair
	x, y := n, m
	for d := len(trace) - 1; d >= 0; d-- {
		v := trace[d]
		k := x - y

		var prevK int
		if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := v[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			pairs = append(pairs, pair{old: x, new: y})
		}
		if d > 0 {
			x, y = prevX, prevY
		}
	}

	for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}
	return pairs
}
