// Package autoreply holds the pure text side of the bridge: keyword
// categorisation, room-message formatting and reply-template suggestion.
// Everything here consumes already-mapped review data and has no state.
package autoreply

import "strings"

type Category string

const (
	CategoryCrash    Category = "crash"
	CategoryBug      Category = "bug"
	CategoryFeature  Category = "feature"
	CategoryQuestion Category = "question"
	CategoryPraise   Category = "praise"
	CategoryOther    Category = "other"
)

var categoryKeywords = map[Category][]string{
	CategoryCrash: {
		"crash", "crashes", "crashed", "freezes", "froze", "hangs", "force close",
	},
	CategoryBug: {
		"bug", "broken", "error", "doesn't work", "does not work", "not working",
		"fails", "glitch", "wrong",
	},
	CategoryFeature: {
		"feature", "would be nice", "please add", "wish", "missing", "suggestion",
		"could you add",
	},
	CategoryQuestion: {
		"how do i", "how to", "why", "where is", "can i", "?",
	},
	CategoryPraise: {
		"love", "great", "awesome", "amazing", "perfect", "excellent", "best app",
		"thank you", "thanks",
	},
}

// scoring order: when keyword counts tie, the earlier category wins.
// A crashing app that the user still loves is a crash report first.
var categoryOrder = []Category{
	CategoryCrash,
	CategoryBug,
	CategoryQuestion,
	CategoryFeature,
	CategoryPraise,
}

// Categorize scores the review body against the keyword lists and returns
// the best-matching category. Low ratings with no keyword hits fall back
// to bug, high ratings to praise.
func Categorize(body string, rating int) Category {
	lowered := strings.ToLower(body)

	best := CategoryOther
	bestScore := 0
	for _, category := range categoryOrder {
		score := 0
		for _, keyword := range categoryKeywords[category] {
			score += strings.Count(lowered, keyword)
		}
		if score > bestScore {
			best = category
			bestScore = score
		}
	}

	if bestScore == 0 {
		switch {
		case rating >= 1 && rating <= 2:
			return CategoryBug
		case rating >= 4:
			return CategoryPraise
		default:
			return CategoryOther
		}
	}
	return best
}
