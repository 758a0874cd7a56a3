// Package extraction reads transactions out of screenshots (bank app,
// Stripe dashboard) with a vision-capable language model.
//
// The model is asked for a strict JSON array in major units. Everything it
// returns goes through the normalizer like any other import, so a confused
// model produces rejections rather than bad ledger rows.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
)

var (
	ErrDisabled      = errors.New("screenshot extraction is disabled")
	ErrEmptyResponse = errors.New("empty response from model")
	ErrNotAnImage    = errors.New("upload is not an image")
)

// Image is an uploaded screenshot.
type Image struct {
	Data     []byte
	MIMEType string // sniffed when empty or generic
	Filename string
}

// Extractor turns a screenshot into raw transaction objects.
type Extractor interface {
	Extract(ctx context.Context, img Image, kind ledger.SourceKind) ([]map[string]any, error)
	Name() string
}

// Options are applied to every extracted record.
type Options struct {
	Kind            ledger.SourceKind
	DefaultCurrency string
	DefaultProject  string
}

// Records extracts transactions from img and wraps them as raw records with
// origin screenshot and major units.
func Records(ctx context.Context, ex Extractor, img Image, opts Options) ([]normalizer.RawRecord, error) {
	if !opts.Kind.Valid() {
		return nil, fmt.Errorf("unknown source kind %q", opts.Kind)
	}
	if img.MIMEType == "" || img.MIMEType == "application/octet-stream" {
		img.MIMEType = http.DetectContentType(img.Data)
	}
	if !strings.HasPrefix(img.MIMEType, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrNotAnImage, img.MIMEType)
	}

	objects, err := ex.Extract(ctx, img, opts.Kind)
	if err != nil {
		return nil, fmt.Errorf("%s extraction: %w", ex.Name(), err)
	}

	records := make([]normalizer.RawRecord, 0, len(objects))
	for _, obj := range objects {
		records = append(records, normalizer.RawRecord{
			Kind:            opts.Kind,
			Origin:          ledger.OriginScreenshot,
			Unit:            ledger.UnitMajor,
			DefaultCurrency: opts.DefaultCurrency,
			DefaultProject:  opts.DefaultProject,
			Fields:          obj,
		})
	}
	return records, nil
}

const basePrompt = "You read screenshots of financial transactions.\n\n" +
	"Task:\n" +
	"- Find ALL transactions visible in the attached image.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array of objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\", or null if not shown\n" +
	"- \"description\": string\n" +
	"- \"counterparty\": string or null\n" +
	"- \"amount\": number in major units as printed (e.g. 1250.50), always positive\n" +
	"- \"direction\": \"income\" for money in, \"expense\" for money out\n" +
	"- \"currency\": three-letter ISO code, or null if not shown\n"

const stripeFields = "- \"payment_id\": the Stripe payment id (starts with pi_ or ch_), exactly as shown\n"

const bankFields = "- \"archive_reference\": the bank's archive reference (arkivreferanse), or null\n" +
	"- \"bank_reference\": any other transaction reference, or null\n"

const rulesPrompt = "\nRules:\n" +
	"- Copy identifiers character for character. Never invent one.\n" +
	"- Do not convert amounts to cents.\n" +
	"- Skip pending or declined transactions.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// Prompt returns the instruction text for a source kind.
func Prompt(kind ledger.SourceKind) string {
	fields := bankFields
	if kind == ledger.SourceStripe {
		fields = stripeFields
	}
	return basePrompt + fields + rulesPrompt
}

// parseTransactions decodes the model's reply. Numbers are kept as
// json.Number so amounts never pass through float64.
func parseTransactions(raw string) ([]map[string]any, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, ErrEmptyResponse
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.UseNumber()
	var objects []map[string]any
	if err := dec.Decode(&objects); err != nil {
		return nil, fmt.Errorf("unmarshal model JSON: %w (raw response: %.200s)", err, raw)
	}
	return objects, nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
