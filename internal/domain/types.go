package domain

import (
	"time"

	"github.com/pbaille/happz/internal/replang"
)

// Sensemaker namespaces. Each addresses one kind of scored thing inside one
// application.
const (
	MemezPath       = "widget.memez.memez"
	AgentPath       = "widget.paperz.agent"
	AnnotationzPath = "widget.paperz.annotationz"
)

// Link tags for content anchors.
const (
	MemeTag             = "memez"
	PaperTag            = "paperz"
	AnnTag              = "annotationz"
	SensemakerCellIDTag = "sensemaker_cell_id"
)

// Sensemaker tags under which a path's state is kept.
const (
	SMInitTag = "SM_INIT"
	SMCompTag = "SM_COMP"
	SMDataTag = "SM_DATA"
)

// Zome names.
const (
	MemezZome      = "memez"
	PaperzZome     = "paperz"
	TrailzZome     = "trailz"
	SensemakerZome = "sensemaker_main"
)

// CellID identifies a running cell: one DNA for one agent.
type CellID struct {
	Dna   DnaHash     `json:"dna"`
	Agent AgentPubKey `json:"agent"`
}

func (c CellID) String() string {
	return c.Dna.String() + ":" + c.Agent.String()
}

// CallContext carries the identity of a zome call: which cell runs it and
// which agent asked for it.
type CallContext struct {
	Cell       CellID
	Provenance AgentPubKey
}

// CapSecret grants access to a cell's functions.
type CapSecret [64]byte

// Meme is an uploaded image.
type Meme struct {
	// must include extension
	Filename string `json:"filename"`
	// base64 encoded file bytes
	BlobStr string `json:"blob_str"`
}

// Paper is an uploaded document.
type Paper struct {
	// must include extension
	Filename string `json:"filename"`
	// base64 encoded file bytes
	BlobStr string `json:"blob_str"`
}

// Annotation is a critique of one paragraph of a paper.
type Annotation struct {
	PaperRef        EntryHash `json:"paper_ref"`
	PageNum         uint64    `json:"page_num"`
	ParagraphNum    uint64    `json:"paragraph_num"`
	WhatItSays      string    `json:"what_it_says"`
	WhatItShouldSay string    `json:"what_it_should_say"`
}

// SensemakerCellID records which cell hosts the sensemaker for an app.
type SensemakerCellID struct {
	CellID CellID `json:"cell_id"`
}

// AnchorEntry is the well-known root entry that content links hang from.
type AnchorEntry struct {
	Type string `json:"anchor_type"`
	Text string `json:"anchor_text"`
}

// Link associates a base entry with a target entry under a tag.
type Link struct {
	ID        string     `json:"id"`
	Base      EntryHash  `json:"base"`
	Target    EntryHash  `json:"target"`
	Tag       string     `json:"tag"`
	Action    ActionHash `json:"action"`
	Seq       uint64     `json:"seq"`
	CreatedAt time.Time  `json:"created_at"`
}

// LatestLink returns the link with the highest sequence number.
func LatestLink(links []Link) (Link, bool) {
	var latest Link
	found := false
	for _, l := range links {
		if !found || l.Seq > latest.Seq {
			latest = l
			found = true
		}
	}
	return latest, found
}

// SensemakerEntry is one version of a path's state: the expression source
// that produced it, the entries it was computed from, and its value.
type SensemakerEntry struct {
	Operator string        `json:"operator"`
	Operands []EntryHash   `json:"operands"`
	Output   replang.Value `json:"output_flat_value"`
}
