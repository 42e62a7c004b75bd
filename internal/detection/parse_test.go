package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/transcriptor-go/internal/datastore"
)

func wordsFrom(tokens ...string) []datastore.Word {
	words := make([]datastore.Word, len(tokens))
	for i, tok := range tokens {
		words[i] = datastore.Word{
			Text:    tok,
			StartMS: int64(i * 1000),
			EndMS:   int64(i*1000 + 900),
		}
	}
	return words
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"JBA123", "JBA123"},
		{"jba123", "JBA123"},
		{"  jba 123  ", "JBA123"},
		{"JAY BEE AYE 123", "JBA123"},
		{"jay bee aye 456", "JBA456"},
		{"J B A 789", "JBA789"},
		{"J.B.A.123", "JBA123"},
		{"JBA-45-B", "JBA-45-B"},
		{"j-b-a 42", "JBA42"},
		{"J-B-A-99", "JBA-99"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCode(tt.in))
		})
	}
}

func TestClassifyVariationType(t *testing.T) {
	tests := []struct {
		in   string
		want datastore.VariationType
	}{
		{"jay bee aye 123", datastore.VariationSpoken},
		{"J.B.A.123", datastore.VariationDotted},
		{"J-B-A 42", datastore.VariationHyphenated},
		{"JBA-45-B", datastore.VariationHyphenated},
		{"J B A 789", datastore.VariationSpaced},
		{"jba123", datastore.VariationLowercase},
		{"JBA123456789XYZ", datastore.VariationExtended},
		{"JBA123", datastore.VariationStandard},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyVariationType(tt.in))
		})
	}
}

func TestFindTimestampForCode(t *testing.T) {
	words := wordsFrom("welcome", "everyone", "your", "code", "is", "jay", "bee", "aye", "one", "two", "three")

	ts := FindTimestampForCode("jay bee aye one two three", words)
	require.NotNil(t, ts)
	assert.Equal(t, int64(5000), *ts)
}

func TestFindTimestampExactMatch(t *testing.T) {
	words := wordsFrom("the", "code", "is", "JBA123.", "thank", "you")

	ts := FindTimestampForCode("JBA123", words)
	require.NotNil(t, ts)
	assert.Equal(t, int64(3000), *ts)
}

func TestFindTimestampToleratesPartialMatch(t *testing.T) {
	// 70% of the search tokens must match; one mismatch in four is fine
	words := wordsFrom("code", "jay", "bee", "aye", "seventeen")

	ts := FindTimestampForCode("jay bee aye 17", words)
	require.NotNil(t, ts)
	assert.Equal(t, int64(1000), *ts)
}

func TestFindTimestampNotFound(t *testing.T) {
	words := wordsFrom("completely", "unrelated", "content")
	assert.Nil(t, FindTimestampForCode("jay bee aye one", words))
}

func TestFindTimestampEmptyInputs(t *testing.T) {
	assert.Nil(t, FindTimestampForCode("jba123", nil))
	assert.Nil(t, FindTimestampForCode("...", wordsFrom("some", "words")))
}

func TestAreSimilar(t *testing.T) {
	tests := []struct {
		w1, w2 string
		want   bool
	}{
		{"jay", "jba", true}, // phonetic token set
		{"b", "bee", true},
		{"aye", "a", true},
		{"hello", "hallo", true}, // one substitution
		{"abc", "xyz", false},    // three substitutions
		{"hi", "hello", false},   // length diff over 2
		{"seventeen", "17", false},
	}

	for _, tt := range tests {
		t.Run(tt.w1+"_"+tt.w2, func(t *testing.T) {
			assert.Equal(t, tt.want, areSimilar(tt.w1, tt.w2))
		})
	}
}

func TestParseResponse(t *testing.T) {
	words := wordsFrom("your", "code", "is", "jay", "bee", "aye", "one", "two", "three")

	response := `Here are the detected codes:
[
  {
    "code": "JBA123",
    "originalText": "jay bee aye one two three",
    "context": "your code is jay bee aye one two three",
    "confidence": 0.92,
    "variationType": "phonetic"
  }
]
Let me know if you need anything else.`

	records := ParseResponse(response, words)
	require.Len(t, records, 1)
	assert.Equal(t, "JBA123", records[0].Code)
	assert.Equal(t, "jay bee aye one two three", records[0].RawText)
	assert.Equal(t, datastore.VariationSpoken, records[0].VariationType)
	assert.InDelta(t, 0.92, records[0].Confidence, 0.001)
	require.NotNil(t, records[0].TimestampMS)
	assert.Equal(t, int64(3000), *records[0].TimestampMS)
}

func TestParseResponseDropsUnlocatable(t *testing.T) {
	words := wordsFrom("nothing", "relevant", "here")

	response := `[{"code": "JBA999", "originalText": "jay bee aye nine nine nine", "confidence": 0.9}]`
	records := ParseResponse(response, words)
	assert.Empty(t, records)
}

func TestParseResponseMalformed(t *testing.T) {
	words := wordsFrom("some", "words")

	assert.Empty(t, ParseResponse("no array here", words))
	assert.Empty(t, ParseResponse("[{not json}]", words))
	assert.Empty(t, ParseResponse("", words))
}

func TestParseResponseDefaultsConfidence(t *testing.T) {
	words := wordsFrom("code", "JBA123")

	response := `[{"code": "JBA123", "originalText": "JBA123"}]`
	records := ParseResponse(response, words)
	require.Len(t, records, 1)
	assert.InDelta(t, 0.8, records[0].Confidence, 0.001)
}

func TestExtractExpectedCount(t *testing.T) {
	count := ExtractExpectedCount(`The speaker announced {"expectedCount": 2} codes.`)
	require.NotNil(t, count)
	assert.Equal(t, 2, *count)

	count = ExtractExpectedCount(`{"expected_code_count": 3}`)
	require.NotNil(t, count)
	assert.Equal(t, 3, *count)

	assert.Nil(t, ExtractExpectedCount(`[{"code": "JBA123"}]`))
	assert.Nil(t, ExtractExpectedCount(""))
}
