package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orpheus-edu/orpheus-core/internal/layouts"
	"github.com/orpheus-edu/orpheus-core/internal/types"
)

const decomposeSystem = `You are an assistant that decomposes a student's question into concise,
retrieval-friendly sub-queries and a final answer plan.
Respond in strict JSON with keys: original_question, subqueries, answer_plan.

Rules:
- Keep subqueries short and focused.
- Do not add explanations outside JSON.`

func decomposeUser(question string) string {
	payload, _ := json.Marshal(map[string]string{"original_question": question})
	return string(payload)
}

const scriptSystem = `You are an assistant that produces a coherent answer to a question based on the provided content and student persona.

Inputs:
- A student persona (id, role, language, preferences, enrolled courses).
- A list of retrieved content (text + images) for a lecture.

Task:
- Combine the retrieved content into a single lecture script.
- Adapt the content difficulty and explanation based on the student's persona.
- Make the script formal.
- Reference images inline where appropriate (e.g., "see image: <description>").
- Respond in strict JSON format with properly escaped strings:

{
  "lectureScript": "Your complete lecture script here as a single string with no line breaks",
  "Images": [{"image": "filename.jpg", "description": "Description text"}]
}

IMPORTANT:
- The JSON must be valid and parseable
- Do NOT include actual line breaks in the lectureScript string value
- Use \n for line breaks within the text if needed
- Image filenames must be copied exactly as they appear in the retrieved content
- Do NOT produce slides or voice scripts at this stage`

func scriptUser(persona types.Persona, chunks []types.DocumentChunk) string {
	payload, _ := json.Marshal(map[string]any{
		"persona":           persona,
		"retrieved_content": chunks,
	})
	return string(payload)
}

const structureSystem = `You are a lecturer tasked with creating a slideset for a lecture. The lecture is already prepared with all relevant contents, examples and exercises. The slideset must not be empty.

Create the sequence of slides that should be used for this slideset. Make sure every part of the lecture outline is kept in at least one slide. You must not add any content of your own. If a specific slide should use any asset, do indicate this.

Return JSON only, no prose, in exactly this shape:

{
  "items": [
    {"content": "detailed description of the slide contents", "layout": "layout name"}
  ]
}

Each layout must be the exact name of one of the available slide layouts.`

func structureUser(lectureScript string, catalog *layouts.Catalog) string {
	var b strings.Builder
	b.WriteString("Lecture outline:\n")
	b.WriteString(lectureScript)
	b.WriteString("\n\nThe available slide layouts are as follows:\n")
	for _, l := range catalog.List() {
		fmt.Fprintf(&b, "Name: %s ; description: %s\n", l.Name, strings.TrimSpace(l.Description))
	}
	return b.String()
}

const slideContentSystem = `You write student-friendly slides for sli.dev.

Goal
- Produce clear, learnable content: one main idea per slide, supported by compact evidence (bullets/table/code).
- Keep cognitive load low: simple wording, short lines, logical order.

Hard rules
- Return JSON only (no prose, no code fences around JSON) that matches the schema below.
- Use ONLY the given text; do not invent facts, numbers, images, or URLs.
- Slides must be self-contained (understandable without other slides).
- Preserve exact numbers, terms, order, and code formatting.
- If a field has no support in the text, set it to "".

Markdown (inside content fields)
- Bullets start with "- " (3-6 bullets ideal; one idea each). Sub-points allowed with two spaces then "- ".
- Inline code with backticks.
- Code blocks ONLY if present; keep whitespace; add language tag if known.
- Tables: reproduce fully as Markdown (no dropped rows/columns).
- Light emphasis (**bold**/*italics*) is ok for key terms present in the text.

Titles (when a title/headline field exists)
- Short, assertive, learner-facing (about 6-12 words), no trailing period.

Images
- If the text names an image, copy the filename EXACTLY as written (no prefixes/suffixes/paths). Otherwise use "".`

func slideContentUser(draft types.SlideDraft, layout layouts.Layout) string {
	var schema strings.Builder
	for field, description := range layout.FieldSchema {
		fmt.Fprintf(&schema, "- %s: %s\n", field, description)
	}

	return fmt.Sprintf(`Create content for a %s slide that helps a student learn the idea quickly.

Use only this text:
<BEGIN_TEXT>
%s
<END_TEXT>

How to write it
- Use the fields as they are intended for a %s slide (see purposes below).
- Prefer bullets over long prose; group example with its explanation.
- Keep item order and wording from the text when listing steps/ranks/values.
- Define terms only if the definition is in the text; do not add new information.
- If a field is not applicable or not supported by the text, set it to "".

Field purposes:
%s
Return a single JSON object whose keys are exactly the field names above and whose values are strings. Return JSON only.`,
		layout.Name, draft.Content, layout.Name, schema.String())
}

const (
	narrationFirstSlide = `This is the FIRST slide of the lecture. Open with a short welcome, introduce the topic of the lecture and set expectations for what the students will learn.`

	narrationLastSlide = `This is the LAST slide of the lecture. Wrap up with a short recap of the key points and close with a brief farewell to the students.`

	narrationRequest = `Write the narration the lecturer speaks over this slide. Return plain text only: no JSON, no Markdown, no stage directions. Keep it to one short paragraph, do not repeat what earlier narrations already said, and stay strictly within the lecture script.`
)

func narrationUser(lectureScript, history, slideContent string, persona types.Persona, first, last bool) string {
	personaJSON, _ := json.Marshal(persona)

	parts := []string{
		fmt.Sprintf(`You are the lecturer narrating a slide deck for this student:
%s
Speak in the student's language and match the preferred depth and length.`, string(personaJSON)),
		"Full lecture script:\n" + lectureScript,
		"Narrations spoken so far:\n" + history,
		"Current slide content:\n" + slideContent,
	}
	if first {
		parts = append(parts, narrationFirstSlide)
	}
	if last {
		parts = append(parts, narrationLastSlide)
	}
	parts = append(parts, narrationRequest)
	return strings.Join(parts, "\n\n")
}

func summaryUser(chunks []types.DocumentChunk) string {
	var texts []string
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content...)
	}
	return "Summarize the following content in 3-4 sentences. Only return the summary, do not preface with any explanation or heading.\n\n" +
		strings.Join(texts, "\n")
}
