package detection

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tphakala/transcriptor-go/internal/datastore"
)

// rawDetection is one entry of the model's JSON array response.
type rawDetection struct {
	Code         string  `json:"code"`
	OriginalText string  `json:"originalText"`
	Context      string  `json:"context"`
	Confidence   float64 `json:"confidence"`
}

var (
	jsonArrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
	expCountRe   = regexp.MustCompile(`(?i)"expected(?:_?code)?_?count"\s*:\s*(\d+)`)
	jayBeeAyeRe  = regexp.MustCompile(`(?i)JAY\s*BEE\s*AYE`)
	spelledJBARe = regexp.MustCompile(`(?i)J[\s.\-]*B[\s.\-]*A`)
	nonCodeRe    = regexp.MustCompile(`[^\w-]`)
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	wordOnlyRe   = regexp.MustCompile(`[^\w]`)
)

// jbaTokens are transcript tokens treated as phonetically equivalent when
// matching a spoken rendering of "JBA" against word-level data.
var jbaTokens = map[string]bool{
	"jba": true, "jay": true, "bee": true, "aye": true,
	"j": true, "b": true, "a": true,
}

// ParseResponse extracts detections from the model output and maps each
// one to a transcript timestamp. Detections whose text cannot be located
// in the word-level data are dropped. Malformed responses yield an empty
// slice rather than an error, a failed parse is treated as no detections.
func ParseResponse(aiResponse string, words []datastore.Word) []datastore.DetectionRecord {
	match := jsonArrayRe.FindString(aiResponse)
	if match == "" {
		logger.Warn("no JSON array found in model response")
		return []datastore.DetectionRecord{}
	}

	var detections []rawDetection
	if err := json.Unmarshal([]byte(match), &detections); err != nil {
		logger.Warn("failed to parse model response", "error", err)
		return []datastore.DetectionRecord{}
	}

	results := make([]datastore.DetectionRecord, 0, len(detections))
	for _, det := range detections {
		timestamp := FindTimestampForCode(det.OriginalText, words)
		if timestamp == nil {
			logger.Warn("could not find timestamp for code", "original_text", det.OriginalText)
			continue
		}

		confidence := det.Confidence
		if confidence == 0 {
			confidence = 0.8
		}
		confidence = min(max(confidence, 0), 1)

		results = append(results, datastore.DetectionRecord{
			Code:          NormalizeCode(det.Code),
			RawText:       det.OriginalText,
			Context:       det.Context,
			Confidence:    confidence,
			VariationType: ClassifyVariationType(det.OriginalText),
			TimestampMS:   timestamp,
		})
	}

	return results
}

// ExtractExpectedCount pulls the model's expected-code-count hint out of
// the response metadata, when it reports one. Returns nil when absent or
// unparseable; the hint is display-only and never gates detections.
func ExtractExpectedCount(aiResponse string) *int {
	match := expCountRe.FindStringSubmatch(aiResponse)
	if match == nil {
		return nil
	}
	count, err := strconv.Atoi(match[1])
	if err != nil || count < 0 {
		return nil
	}
	return &count
}

// NormalizeCode reduces a detected code to its canonical form: spoken,
// dotted, hyphenated and spaced renderings of JBA collapse to the literal
// prefix, whitespace is removed, and only word characters and hyphens
// survive, so separators inside the code body (JBA-45-B) are kept.
func NormalizeCode(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	normalized = jayBeeAyeRe.ReplaceAllString(normalized, "JBA")
	normalized = spelledJBARe.ReplaceAllString(normalized, "JBA")
	normalized = strings.Join(strings.Fields(normalized), "")
	return nonCodeRe.ReplaceAllString(normalized, "")
}

// ClassifyVariationType labels how a code was rendered in the transcript.
func ClassifyVariationType(originalText string) datastore.VariationType {
	text := strings.ToLower(originalText)

	switch {
	case strings.Contains(text, "jay") || strings.Contains(text, "bee") || strings.Contains(text, "aye"):
		return datastore.VariationSpoken
	case strings.Contains(text, "j.b.a"):
		return datastore.VariationDotted
	case strings.Contains(text, "j-b-a") || strings.Contains(text, "jba-"):
		return datastore.VariationHyphenated
	case strings.Contains(text, "j b a"):
		return datastore.VariationSpaced
	case originalText == text && strings.Contains(text, "jba"):
		return datastore.VariationLowercase
	case len(text) > 10:
		return datastore.VariationExtended
	default:
		return datastore.VariationStandard
	}
}

// FindTimestampForCode locates a detection's spoken text in word-level
// transcript data via a sliding window and returns the start time of the
// first window where at least 70% of tokens match. Returns nil when the
// text cannot be located.
func FindTimestampForCode(originalText string, words []datastore.Word) *int64 {
	if len(words) == 0 {
		return nil
	}

	searchText := nonWordRe.ReplaceAllString(strings.ToLower(originalText), " ")
	searchWords := strings.Fields(searchText)
	if len(searchWords) == 0 {
		return nil
	}

	required := (len(searchWords)*7 + 9) / 10 // ceil(len * 0.7)

	for i := 0; i <= len(words)-len(searchWords); i++ {
		matchCount := 0
		for j := 0; j < len(searchWords); j++ {
			transcriptWord := wordOnlyRe.ReplaceAllString(strings.ToLower(words[i+j].Text), "")
			if transcriptWord == searchWords[j] || areSimilar(transcriptWord, searchWords[j]) {
				matchCount++
			} else if matchCount > 0 {
				break
			}
		}

		if matchCount >= required {
			ts := words[i].StartMS
			return &ts
		}
	}

	return nil
}

// areSimilar reports phonetic similarity between a transcript token and a
// search token. JBA phonetic tokens always match each other; otherwise a
// positional comparison tolerating two substitutions applies, with a
// length difference above two rejecting outright.
func areSimilar(word1, word2 string) bool {
	if jbaTokens[word1] && jbaTokens[word2] {
		return true
	}

	diff := len(word1) - len(word2)
	if diff > 2 || diff < -2 {
		return false
	}

	differences := 0
	maxLen := max(len(word1), len(word2))
	for i := 0; i < maxLen; i++ {
		var c1, c2 byte
		if i < len(word1) {
			c1 = word1[i]
		}
		if i < len(word2) {
			c2 = word2[i]
		}
		if c1 != c2 {
			differences++
		}
	}

	return differences <= 2
}
