package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/raine/tradefeed/internal/storage"
)

// wireAttributes mirrors the JSON object the extraction prompt asks for.
type wireAttributes struct {
	Price       flexNumber `json:"price"`
	Brand       string     `json:"brand"`
	ProductType string     `json:"productType"`
	Gender      string     `json:"gender"`
	Size        flexString `json:"size"`
	Condition   string     `json:"condition"`
	IsWTB       bool       `json:"iswtb"`
	IsWTS       bool       `json:"iswts"`
}

// flexNumber accepts 80, "80" and "£80.00".
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = flexNumber(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("price is neither number nor string: %s", data)
	}
	cleaned := priceCharsRe.ReplaceAllString(s, "")
	if cleaned == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", s, err)
	}
	*n = flexNumber(f)
	return nil
}

var priceCharsRe = regexp.MustCompile(`[^0-9.]`)

// flexString accepts both "9" and 9.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("size is neither string nor number: %s", data)
	}
	*s = flexString(num.String())
	return nil
}

// decodeAttributes parses model output. A strict decode of the raw text is
// tried first; if that fails the text is repaired and decoded once more.
func decodeAttributes(raw string) (Attributes, error) {
	wire, strictErr := decodeStrict(raw)
	if strictErr == nil {
		return wire.toAttributes(), nil
	}

	repaired, err := repairJSON(raw)
	if err != nil {
		return Attributes{}, fmt.Errorf("failed to decode model output: %w", strictErr)
	}

	var lenient wireAttributes
	if err := json.Unmarshal([]byte(repaired), &lenient); err != nil {
		return Attributes{}, fmt.Errorf("failed to decode repaired model output: %w (response: %s)", err, raw)
	}
	return lenient.toAttributes(), nil
}

func decodeStrict(raw string) (*wireAttributes, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var wire wireAttributes
	if err := dec.Decode(&wire); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	return &wire, nil
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	pythonLiteralRe = regexp.MustCompile(`:\s*(True|False|None)\b`)
	smartQuotes     = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// repairJSON applies a fixed set of fixes for common model output defects:
// code fences and surrounding prose, curly quotes, single-quoted strings,
// Python literals and trailing commas.
func repairJSON(raw string) (string, error) {
	text := smartQuotes.Replace(raw)

	text, err := extractJSONObject(text)
	if err != nil {
		return "", err
	}

	if !strings.Contains(text, `"`) {
		text = strings.ReplaceAll(text, "'", `"`)
	}

	text = pythonLiteralRe.ReplaceAllStringFunc(text, func(m string) string {
		switch {
		case strings.HasSuffix(m, "True"):
			return ": true"
		case strings.HasSuffix(m, "False"):
			return ": false"
		default:
			return ": null"
		}
	})

	text = trailingCommaRe.ReplaceAllString(text, "$1")

	if !json.Valid([]byte(text)) {
		return "", fmt.Errorf("repaired output is still not valid JSON: %s", text)
	}

	return text, nil
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting. Returns the extracted JSON string or an error.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

func (w *wireAttributes) toAttributes() Attributes {
	a := Attributes{
		Price:       float64(w.Price),
		Brand:       strings.TrimSpace(w.Brand),
		ProductType: strings.TrimSpace(w.ProductType),
		Gender:      normalizeGender(w.Gender),
		Size:        strings.TrimSpace(string(w.Size)),
		Condition:   normalizeCondition(w.Condition),
		IsWTB:       w.IsWTB,
		IsWTS:       w.IsWTS,
	}
	if a.Price < 0 {
		a.Price = 0
	}
	if !a.IsWTB && !a.IsWTS && a.Price > 0 {
		a.IsWTS = true
	}
	return a
}

var genderAliases = map[string]storage.Gender{
	"men":      storage.GenderMen,
	"man":      storage.GenderMen,
	"mens":     storage.GenderMen,
	"male":     storage.GenderMen,
	"women":    storage.GenderWomen,
	"woman":    storage.GenderWomen,
	"womens":   storage.GenderWomen,
	"female":   storage.GenderWomen,
	"ladies":   storage.GenderWomen,
	"unisex":   storage.GenderUnisex,
	"kids":     storage.GenderKids,
	"kid":      storage.GenderKids,
	"children": storage.GenderKids,
	"youth":    storage.GenderKids,
	"gs":       storage.GenderKids,
}

func normalizeGender(s string) storage.Gender {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "'", "")
	if g, ok := genderAliases[key]; ok {
		return g
	}
	return storage.GenderUnisex
}

var conditionAliases = map[string]storage.Condition{
	"new":       storage.ConditionNew,
	"brand_new": storage.ConditionNew,
	"bnib":      storage.ConditionNew,
	"bnwt":      storage.ConditionNew,
	"ds":        storage.ConditionNew,
	"deadstock": storage.ConditionNew,
	"like_new":  storage.ConditionLikeNew,
	"likenew":   storage.ConditionLikeNew,
	"mint":      storage.ConditionLikeNew,
	"excellent": storage.ConditionLikeNew,
	"vnds":      storage.ConditionLikeNew,
	"used":      storage.ConditionUsed,
	"good":      storage.ConditionUsed,
	"worn":      storage.ConditionUsed,
	"pre_owned": storage.ConditionUsed,
	"fair":      storage.ConditionFair,
	"poor":      storage.ConditionPoor,
	"bad":       storage.ConditionPoor,
	"damaged":   storage.ConditionPoor,
}

func normalizeCondition(s string) storage.Condition {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if c, ok := conditionAliases[key]; ok {
		return c
	}
	return storage.ConditionNew
}
