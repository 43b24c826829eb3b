package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tabletalk-ai/server/internal/analysis/model"
	errx "github.com/tabletalk-ai/server/internal/core/error"
	logx "github.com/tabletalk-ai/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 256 * 1024 // 256KB of raw model output
	maxErrSnippet = 200        // limit error snippet size
)

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrSnippet {
		return s[:maxErrSnippet] + "..."
	}
	return s
}

// extractJSONSpan returns the substring between the first '{' and the last
// '}' in the raw text. The backend sometimes wraps the JSON object in prose.
func extractJSONSpan(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// ParseAnalysisResponse turns the latest assistant message's raw text into a
// validated AnalysisResponse. All four contract fields must be present;
// missing fields are reported by name, never silently defaulted.
func ParseAnalysisResponse(content string) (resp *model.AnalysisResponse, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "response_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("response parser panic"), errx.KindParse, errx.StageParse, errx.SystemErrorMessage)
			resp = nil
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "response_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		// keep the tail so the closing brace of the object survives
		content = content[len(content)-maxContentLen:]
	}

	span, ok := extractJSONSpan(content)
	if !ok {
		return nil, errx.Newf(nil, errx.KindParse, errx.StageParse,
			"no JSON found in response: %s", safeSnippet(content))
	}

	var fields map[string]json.RawMessage
	if uerr := json.Unmarshal([]byte(span), &fields); uerr != nil {
		return nil, errx.Newf(uerr, errx.KindParse, errx.StageParse,
			"malformed JSON in response: %s", safeSnippet(span))
	}

	// Observed backend artifact: the response schema itself occasionally
	// leaks into the payload, nesting the real object under "properties".
	if raw, ok := fields["properties"]; ok {
		var inner map[string]json.RawMessage
		if uerr := json.Unmarshal(raw, &inner); uerr == nil {
			logx.Debug().Str("component", "response_parser").Msg("unwrapped nested properties object")
			fields = inner
		}
	}

	var missing []string
	for _, name := range model.RequiredResponseFields {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, errx.Newf(nil, errx.KindValidation, errx.StageParse,
			"response missing required fields: %s", strings.Join(missing, ", "))
	}

	out := &model.AnalysisResponse{}
	if err := decodeField(fields, "code", &out.Code); err != nil {
		return nil, err
	}
	if err := decodeField(fields, "steps", &out.Steps); err != nil {
		return nil, err
	}
	if err := decodeField(fields, "results", &out.Results); err != nil {
		return nil, err
	}
	if err := decodeField(fields, "final_answer", &out.FinalAnswer); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeField(fields map[string]json.RawMessage, name string, dst any) error {
	if uerr := json.Unmarshal(fields[name], dst); uerr != nil {
		return errx.Newf(uerr, errx.KindValidation, errx.StageParse,
			"response field %q has wrong type", name)
	}
	return nil
}
