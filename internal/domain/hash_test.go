package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/pbaille/happz/internal/codec"
)

func TestHashEntryDeterministic(t *testing.T) {
	a, _, err := HashEntry(Meme{Filename: "a.png", BlobStr: "QQ=="})
	assert.Equal(t, err, nil)
	b, _, err := HashEntry(Meme{Filename: "a.png", BlobStr: "QQ=="})
	assert.Equal(t, err, nil)
	c, _, err := HashEntry(Meme{Filename: "b.png", BlobStr: "QQ=="})
	assert.Equal(t, err, nil)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestHashStringRoundTrip(t *testing.T) {
	eh, _, _ := HashEntry(Paper{Filename: "p.pdf"})

	s := eh.String()
	assert.Equal(t, strings.HasPrefix(s, "u"), true)
	assert.Equal(t, strings.ContainsAny(s, "/+="), false)

	back, err := ParseEntryHash(s)
	assert.Equal(t, err, nil)
	assert.Equal(t, back, eh)
}

func TestParseRejectsWrongKind(t *testing.T) {
	var agent AgentPubKey
	agent[0] = 7

	_, err := ParseEntryHash(agent.String())
	assert.NotEqual(t, err, nil)

	_, err = ParseAgentPubKey("not-a-hash")
	assert.NotEqual(t, err, nil)
}

func TestAnnotationEncodings(t *testing.T) {
	ref, _, _ := HashEntry(Paper{Filename: "p.pdf", BlobStr: "AA=="})
	ann := Annotation{PaperRef: ref, PageNum: 3, ParagraphNum: 2, WhatItSays: "x", WhatItShouldSay: "y"}

	j, err := json.Marshal(ann)
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.Contains(string(j), `"paper_ref":"`+ref.String()+`"`), true)

	body, err := codec.Marshal(ann)
	assert.Equal(t, err, nil)
	var decoded Annotation
	assert.Equal(t, codec.Unmarshal(body, &decoded), nil)
	assert.Equal(t, decoded, ann)
}

func TestLatestLink(t *testing.T) {
	_, ok := LatestLink(nil)
	assert.Equal(t, ok, false)

	l, ok := LatestLink([]Link{{ID: "a", Seq: 2}, {ID: "b", Seq: 5}, {ID: "c", Seq: 3}})
	assert.Equal(t, ok, true)
	assert.Equal(t, l.ID, "b")
}
