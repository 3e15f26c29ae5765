package conversation

import "unicode"

// DetectLanguage classifies a message as "hebrew" or "english" by
// script. Hebrew wins when more than 30% of the letters are in the
// Hebrew block, and it is also the default when a message has no
// letters at all.
func DetectLanguage(text string) string {
	var letters, hebrew int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r >= 0x0590 && r <= 0x05FF {
			hebrew++
		}
	}
	if letters == 0 {
		return "hebrew"
	}
	if float64(hebrew)/float64(letters) > 0.3 {
		return "hebrew"
	}
	return "english"
}
