package thread

import (
	"sort"

	"github.com/callingitnow/callit/internal/model"
)

// Sort orders roots and every replies list by mode. The sort is stable so
// ties keep the order the server returned.
func Sort(roots []model.Comment, mode model.CommentSort) {
	less := lessFor(mode)
	stack := [][]model.Comment{roots}
	for len(stack) > 0 {
		level := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sort.SliceStable(level, func(i, j int) bool { return less(level[i], level[j]) })
		for i := range level {
			if len(level[i].Replies) > 0 {
				stack = append(stack, level[i].Replies)
			}
		}
	}
}

func lessFor(mode model.CommentSort) func(a, b model.Comment) bool {
	if mode == model.SortNew {
		return func(a, b model.Comment) bool { return a.CreatedAt().After(b.CreatedAt()) }
	}
	return func(a, b model.Comment) bool { return a.VoteScore > b.VoteScore }
}
