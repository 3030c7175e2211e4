package local

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// averageWordRunes is the word length a words-per-minute rate assumes.
const averageWordRunes = 5

// WordMark is an estimated word boundary.
type WordMark struct {
	Offset int // rune offset
	Length int // runes
	At     time.Duration
}

// EstimateBoundaries splits text into words (UAX #29) and estimates when
// each starts at the given speaking rate. Words are weighted by length so a
// long word takes longer than a short one.
func EstimateBoundaries(text string, wordsPerMinute int, rate float64) []WordMark {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 175
	}
	if rate <= 0 {
		rate = 1
	}
	perRune := time.Duration(float64(time.Minute) / (float64(wordsPerMinute) * rate * averageWordRunes))

	var marks []WordMark
	var at time.Duration
	offset := 0
	state := -1
	rest := text
	for len(rest) > 0 {
		var word string
		word, rest, state = uniseg.FirstWordInString(rest, state)
		n := utf8.RuneCountInString(word)
		if isSpoken(word) {
			marks = append(marks, WordMark{Offset: offset, Length: n, At: at})
			at += time.Duration(n) * perRune
		} else if strings.ContainsFunc(word, unicode.IsPunct) {
			// Pause briefly at punctuation.
			at += perRune
		}
		offset += n
	}
	return marks
}

func isSpoken(word string) bool {
	return strings.ContainsFunc(word, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsNumber(r)
	})
}
