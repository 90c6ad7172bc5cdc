package exiftags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchingAlbums_LabelMatch(t *testing.T) {
	tags := Tags{Label: "Favorites"}
	labelAlbums := []KeyAlbum{{Key: "Favorites", Album: "Best Of"}}

	titles := MatchingAlbums(tags, labelAlbums, nil)
	assert.Equal(t, []string{"Best Of"}, titles)
}

func TestMatchingAlbums_SubjectMatch(t *testing.T) {
	tags := Tags{Subjects: []string{"Alice", "Bob"}}
	subjectAlbums := []KeyAlbum{{Key: "Bob", Album: "Bob's Photos"}}

	titles := MatchingAlbums(tags, nil, subjectAlbums)
	assert.Equal(t, []string{"Bob's Photos"}, titles)
}

func TestMatchingAlbums_NoMatch(t *testing.T) {
	tags := Tags{Label: "Unrelated"}
	labelAlbums := []KeyAlbum{{Key: "Favorites", Album: "Best Of"}}

	assert.Empty(t, MatchingAlbums(tags, labelAlbums, nil))
}

func TestMatchingAlbums_EmptyKeyNeverMatches(t *testing.T) {
	tags := Tags{Label: ""}
	labelAlbums := []KeyAlbum{{Key: "", Album: "Should Not Match"}}

	assert.Empty(t, MatchingAlbums(tags, labelAlbums, nil))
}

func TestMatchingAlbums_BothLabelAndSubjectCanMatch(t *testing.T) {
	tags := Tags{Label: "Favorites", Subjects: []string{"Alice"}}
	labelAlbums := []KeyAlbum{{Key: "Favorites", Album: "Best Of"}}
	subjectAlbums := []KeyAlbum{{Key: "Alice", Album: "Alice's Photos"}}

	titles := MatchingAlbums(tags, labelAlbums, subjectAlbums)
	assert.ElementsMatch(t, []string{"Best Of", "Alice's Photos"}, titles)
}

func TestMatchingAlbums_SubjectMatchesOnlyOncePerKeyAlbum(t *testing.T) {
	tags := Tags{Subjects: []string{"Alice", "Alice"}}
	subjectAlbums := []KeyAlbum{{Key: "Alice", Album: "Alice's Photos"}}

	titles := MatchingAlbums(tags, nil, subjectAlbums)
	assert.Equal(t, []string{"Alice's Photos"}, titles)
}
