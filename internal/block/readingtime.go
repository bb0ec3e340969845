package block

import "unicode"

// charsPerMinute is the average reading speed the estimate is based on.
const charsPerMinute = 500

// CountCharacters sums the non-whitespace rune count of the extractable text
// of every block in the tree, descendants included. It is additive across
// sibling lists: CountCharacters(a)+CountCharacters(b) equals
// CountCharacters(append(a, b...)).
func CountCharacters(blocks []Block) int {
	total := 0
	for _, b := range blocks {
		for _, r := range b.PlainText() {
			if !unicode.IsSpace(r) {
				total++
			}
		}
		if len(b.Children) > 0 {
			total += CountCharacters(b.Children)
		}
	}
	return total
}

// ReadingTime estimates reading time in whole minutes, never less than 1.
func ReadingTime(blocks []Block) int {
	chars := CountCharacters(blocks)
	minutes := (chars + charsPerMinute - 1) / charsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
