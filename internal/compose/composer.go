// Package compose assembles the prompt for the answer model from the
// two evidence tiers: the immediate memory of the latest upload batch
// and the fragments retrieved from the case's vector index. When both
// tiers are empty there is nothing to ground an answer on, so the
// composer refuses instead of letting the model improvise.
package compose

import (
	"errors"
	"strings"
)

// ErrNoBasis indicates the question has no evidence behind it. Callers
// must not invoke the model and should surface RefusalMessage instead.
var ErrNoBasis = errors.New("no documents provide a basis for this question")

// RefusalMessage is the fixed reply for questions without any evidence.
const RefusalMessage = "I have no documents in this case to base an answer on. " +
	"Upload the relevant files and ask again."

// preamble frames the model as a document analyst working from
// extracted text. OCR, transcribed audio and rendered tables arrive as
// plain text, so the model must treat them as ground truth rather than
// claim it cannot read images or spreadsheets.
const preamble = `You are a meticulous case analyst. Answer strictly from the document
excerpts below. The excerpts are text extracted from the case files:
scanned images arrive via OCR, audio via transcription, spreadsheets as
tables. Treat all of it as ground truth. Never say you cannot read
images, audio or spreadsheets. If the excerpts do not answer the
question, say so plainly instead of guessing.`

// Prompt is the composed model input and the evidence behind it.
type Prompt struct {
	// Text is the full prompt handed to the model.
	Text string

	// Sources are the distinct file names the persisted evidence
	// came from, best match first.
	Sources []string
}

// Build merges the immediate memory and the retrieved context into one
// prompt. Immediate memory comes first so the freshest upload outranks
// older persisted fragments. Returns ErrNoBasis when both are empty.
func Build(immediate string, persisted string, sources []string, question string) (Prompt, error) {
	immediate = strings.TrimSpace(immediate)
	persisted = strings.TrimSpace(persisted)
	if immediate == "" && persisted == "" {
		return Prompt{}, ErrNoBasis
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")

	if immediate != "" {
		b.WriteString("## Documents just uploaded\n\n")
		b.WriteString(immediate)
		b.WriteString("\n\n")
	}
	if persisted != "" {
		b.WriteString("## Relevant excerpts from the case file\n\n")
		b.WriteString(persisted)
		b.WriteString("\n\n")
	}

	b.WriteString("## Question\n\n")
	b.WriteString(strings.TrimSpace(question))

	return Prompt{Text: b.String(), Sources: sources}, nil
}
