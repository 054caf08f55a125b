package extraction

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"medexpense/internal/receipt"
)

// fieldPrompt asks the model for the three receipt fields and nothing
// but JSON. Receipts are Japanese, so the instruction is too.
const fieldPrompt = `この医療費領収書から以下の情報を抽出してください。
1.患者氏名（正確に抽出してください。周囲に「氏名」や「様」と記載されている場合が多いです。）
2.医療機関名（正式名称を抽出してください。1枚の領収書に薬局と病院の名前が印刷されている場合、薬局の名前を抽出してください。）
3.支払った医療費の金額（数字のみ）

### 出力フォーマット:
` + "```json" + `
{
  "患者氏名": "値1",
  "医療機関名": "値2",
  "支払った医療費の金額": "値3"
}
` + "```" + `

**[重要事項]**
- **このフォーマット以外の出力を禁止します**。
- JSONのフィールドは必ず指定された形式で出力してください。`

// unknownField is the marker the prompt lets the model fall back to for
// fields it cannot read.
const unknownField = "不明"

// fieldResponse is the JSON shape the prompt demands. The amount is kept
// raw: models answer with a quoted string or a bare number depending on
// the receipt.
type fieldResponse struct {
	Patient     string          `json:"患者氏名"`
	Institution string          `json:"医療機関名"`
	Amount      json.RawMessage `json:"支払った医療費の金額"`
}

// ParseFields turns raw model output into a record for sourceFile. It is
// deliberately tolerant — malformed output is data, not an error — so it
// always returns a record, downgrading the status as fields go missing.
func ParseFields(sourceFile, text string) receipt.Record {
	patient, institution, amountText := scanFields(text)
	amount, amountOK := ParseAmount(amountText)

	missing := 0
	if !fieldKnown(patient) {
		missing++
	}
	if !fieldKnown(institution) {
		missing++
	}
	if !amountOK {
		missing++
	}

	status := receipt.StatusSuccess
	switch missing {
	case 0:
	case 3:
		status = receipt.StatusFailure
	default:
		status = receipt.StatusPartialFailure
	}
	if status != receipt.StatusSuccess {
		slog.Warn("Receipt fields incomplete", "file", sourceFile, "status", status)
	}

	return receipt.Record{
		SourceFile:  sourceFile,
		PatientName: patient,
		Institution: institution,
		Amount:      amount,
		AmountOK:    amountOK,
		Status:      status,
	}
}

// scanFields pulls the three fields out of the model output: fenced or
// bare JSON first, then a line-label fallback for answers that ignored
// the format instruction.
func scanFields(text string) (patient, institution, amountText string) {
	if body, ok := jsonHull(text); ok {
		var resp fieldResponse
		if err := json.Unmarshal([]byte(body), &resp); err == nil {
			return strings.TrimSpace(resp.Patient),
				strings.TrimSpace(resp.Institution),
				rawAmountText(resp.Amount)
		}
	}
	patient = labelValue(text, "患者氏名")
	institution = labelValue(text, "医療機関名")
	amountText = labelValue(text, "支払った医療費の金額")
	return patient, institution, amountText
}

// trailingComma matches a comma left dangling before a closing brace or
// bracket, a frequent model slip that encoding/json rejects.
var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// jsonHull strips markdown code fences and returns the outermost {...}
// of the response, if any, with dangling commas repaired.
func jsonHull(text string) (string, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return trailingComma.ReplaceAllString(text[start:end+1], "$1"), true
}

// labelValue returns the rest of the line following "label:", trying
// both colon widths, or "" when the label never appears.
func labelValue(text, label string) string {
	for _, sep := range []string{":", "："} {
		if _, after, found := strings.Cut(text, label+sep); found {
			line, _, _ := strings.Cut(after, "\n")
			return strings.TrimSpace(line)
		}
	}
	return ""
}

// rawAmountText renders the raw amount field as text, whichever JSON
// shape it arrived in.
func rawAmountText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}

// fieldKnown reports whether an extracted name field carries an actual
// value rather than nothing or the unknown marker.
func fieldKnown(value string) bool {
	return value != "" && value != unknownField
}

// amountPattern matches the first digit run, allowing comma thousands
// separators inside it.
var amountPattern = regexp.MustCompile(`[0-9][0-9,]*`)

// ParseAmount extracts a whole-yen amount from a free-form value: width
// variants are folded to ASCII, then the first digit run is taken,
// scanning past currency decorations (¥, 円) and other stray text. ok is
// false when no plausible number is present.
func ParseAmount(raw string) (amount int, ok bool) {
	folded := width.Fold.String(raw)
	match := amountPattern.FindString(folded)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}
