// Package extractor implements the Structured Output Extractor
// (component E): tolerant extraction of {spec, tasks} from a free-form
// LLM completion, in four increasingly permissive layers.
package extractor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/agentboard/agentboard/internal/boardmodel"
	"github.com/agentboard/agentboard/internal/errors"
)

var (
	fenceRe  = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	thinkRe  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	specFieldRe     = regexp.MustCompile(`(?s)"spec"\s*:\s*"(.*?)"\s*,\s*"tasks"`)
	taskObjectRe    = regexp.MustCompile(`\{\s*"title"\s*:\s*"([^"]*)"\s*,\s*"details"\s*:\s*"([^"]*)"\s*\}`)
)

// Extracted is the structured output the spec generator writes back to
// the board.
type Extracted struct {
	Spec  string
	Tasks []boardmodel.SpecTask
}

// Extract runs the four layers in order, returning the first that
// succeeds. sink receives the raw text only when every layer fails, for
// offline diagnosis.
func Extract(raw string, sink func(raw string)) (Extracted, error) {
	cleaned := stripFenceAndThink(raw)

	if ex, ok := tryDirectDecode(cleaned); ok {
		return ex, nil
	}
	if ex, ok := trySubstringDecode(cleaned); ok {
		return ex, nil
	}
	if ex, ok := tryRegexExtract(cleaned); ok {
		return ex, nil
	}

	if sink != nil {
		sink(raw)
	}
	return Extracted{}, errors.ErrExtractFailed("no layer could parse a spec field")
}

// stripFenceAndThink removes a leading/trailing code fence and any
// <think>...</think> reasoning block.
func stripFenceAndThink(raw string) string {
	s := thinkRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	return strings.TrimSpace(s)
}

type rawDoc struct {
	Spec  string `json:"spec"`
	Tasks []struct {
		Title   string `json:"title"`
		Details string `json:"details"`
	} `json:"tasks"`
}

func tryDirectDecode(s string) (Extracted, bool) {
	var doc rawDoc
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return Extracted{}, false
	}
	if !gjson.Valid(s) || !gjson.Get(s, "spec").Exists() {
		return Extracted{}, false
	}
	return toExtracted(doc), true
}

func trySubstringDecode(s string) (Extracted, bool) {
	key := strings.Index(s, `"spec"`)
	if key < 0 {
		return Extracted{}, false
	}
	start := strings.LastIndex(s[:key], "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < key {
		return Extracted{}, false
	}
	return tryDirectDecode(s[start : end+1])
}

func tryRegexExtract(s string) (Extracted, bool) {
	m := specFieldRe.FindStringSubmatch(s)
	if m == nil {
		return Extracted{}, false
	}
	spec := unescape(m[1])

	var tasks []boardmodel.SpecTask
	if tasksJSON := gjson.Get(s, "tasks"); tasksJSON.IsArray() {
		tasksJSON.ForEach(func(_, v gjson.Result) bool {
			tasks = append(tasks, boardmodel.SpecTask{
				Title:   v.Get("title").String(),
				Details: v.Get("details").String(),
			})
			return true
		})
	}
	if tasks == nil {
		for _, tm := range taskObjectRe.FindAllStringSubmatch(s, -1) {
			tasks = append(tasks, boardmodel.SpecTask{Title: unescape(tm[1]), Details: unescape(tm[2])})
		}
	}

	return Extracted{Spec: spec, Tasks: tasks}, true
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}

func toExtracted(doc rawDoc) Extracted {
	ex := Extracted{Spec: doc.Spec}
	for _, t := range doc.Tasks {
		ex.Tasks = append(ex.Tasks, boardmodel.SpecTask{Title: t.Title, Details: t.Details})
	}
	return ex
}
