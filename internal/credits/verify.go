package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spigell/worky/internal/ai"
	"go.uber.org/zap"
)

// MaxVerifyAttempts caps proof submissions per purchase.
const MaxVerifyAttempts = 3

// DefaultRecipients are the accepted spellings of the payee name.
var DefaultRecipients = []string{
	"francesco lucchesi",
	"francesco",
	"lucchesi",
	"francesco l",
	"f lucchesi",
}

// Status is the outcome class of a verification.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusError   Status = "error"
)

// Reason explains why a proof was rejected.
type Reason string

const (
	ReasonRecipientMismatch Reason = "recipient_mismatch"
	ReasonAmountMismatch    Reason = "amount_mismatch"
)

// Verification is the result of checking one payment screenshot.
type Verification struct {
	Valid      bool
	Amount     float64
	Recipient  string
	Status     Status
	Confidence float64
	Reasons    []Reason
	Error      string
}

// Has reports whether r is among the rejection reasons.
func (v Verification) Has(r Reason) bool {
	for _, reason := range v.Reasons {
		if reason == r {
			return true
		}
	}
	return false
}

type imageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Verifier checks payment screenshots against an expected amount and payee.
type Verifier struct {
	fetcher    imageFetcher
	reader     ai.ReceiptReader
	recipients []string
	logger     *zap.Logger
}

func NewVerifier(fetcher imageFetcher, reader ai.ReceiptReader, recipients []string, logger *zap.Logger) *Verifier {
	if len(recipients) == 0 {
		recipients = DefaultRecipients
	}
	normalized := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			normalized = append(normalized, r)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{fetcher: fetcher, reader: reader, recipients: normalized, logger: logger}
}

// VerifyPayment never returns an error: failures are reported with StatusError.
func (v *Verifier) VerifyPayment(ctx context.Context, imageURL, mimeType string, expected float64) Verification {
	image, err := v.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return v.report(Verification{}, fmt.Errorf("download image: %w", err), expected)
	}
	return v.VerifyImage(ctx, image, mimeType, expected)
}

// VerifyImage checks an already downloaded screenshot.
func (v *Verifier) VerifyImage(ctx context.Context, image []byte, mimeType string, expected float64) Verification {
	res, err := v.verify(ctx, image, mimeType, expected)
	return v.report(res, err, expected)
}

func (v *Verifier) report(res Verification, err error, expected float64) Verification {
	if err != nil {
		v.logger.Warn("payment verification failed", zap.Error(err))
		return Verification{
			Recipient: "Error al procesar",
			Status:    StatusError,
			Error:     err.Error(),
		}
	}

	v.logger.Info("payment verified",
		zap.Bool("valid", res.Valid),
		zap.Float64("amount", res.Amount),
		zap.Float64("expected", expected),
		zap.String("recipient", res.Recipient),
	)
	return res
}

func (v *Verifier) verify(ctx context.Context, image []byte, mimeType string, expected float64) (Verification, error) {
	if len(image) == 0 {
		return Verification{}, errors.New("empty image")
	}

	raw, err := v.reader.ReadReceipt(ctx, image, mimeType)
	if err != nil {
		return Verification{}, err
	}

	obj, ok := FirstObject(raw)
	if !ok {
		return Verification{}, errors.New("no JSON object in model output")
	}

	var data struct {
		Name   any `json:"nombre"`
		Amount any `json:"monto"`
	}
	if err := json.Unmarshal([]byte(obj), &data); err != nil {
		return Verification{}, fmt.Errorf("parse receipt: %w", err)
	}

	return v.Check(stringValue(data.Name), amountValue(data.Amount), expected), nil
}

// Check applies the recipient and amount rules to extracted values.
func (v *Verifier) Check(recipient string, amount, expected float64) Verification {
	res := Verification{
		Amount:    amount,
		Recipient: recipient,
	}
	if res.Recipient == "" {
		res.Recipient = "No detectado"
	}

	name := strings.ToLower(strings.TrimSpace(recipient))
	nameOK := false
	for _, variant := range v.recipients {
		if strings.Contains(name, variant) {
			nameOK = true
			break
		}
	}
	if !nameOK {
		res.Reasons = append(res.Reasons, ReasonRecipientMismatch)
	}
	if amount != expected {
		res.Reasons = append(res.Reasons, ReasonAmountMismatch)
	}

	res.Valid = len(res.Reasons) == 0
	if res.Valid {
		res.Status = StatusValid
		res.Confidence = 0.99
	} else {
		res.Status = StatusInvalid
		res.Confidence = 0.5
	}
	return res
}

// Message describes the rejection reasons for the user.
func (v Verification) Message(expected float64) string {
	var parts []string
	if v.Has(ReasonRecipientMismatch) {
		parts = append(parts, "Nombre del destinatario no coincide.")
	}
	if v.Has(ReasonAmountMismatch) {
		parts = append(parts, fmt.Sprintf("Monto no coincide (detectado: %s, esperado: %s).",
			FormatPrice(v.Amount), FormatPrice(expected)))
	}
	if v.Status == StatusError && v.Error != "" {
		parts = append(parts, "Error técnico: no se pudo procesar la imagen.")
	}
	return strings.Join(parts, " ")
}

// FirstObject returns the first well-formed JSON object embedded in s.
func FirstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := objectEnd(s[start:]); end > 0 {
			candidate := s[start : start+end]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// objectEnd returns the length of the balanced {...} prefix of s, or 0.
func objectEnd(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return 0
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

func amountValue(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		s := strings.TrimSpace(val)
		s = strings.TrimPrefix(strings.TrimPrefix(s, "S/"), "s/")
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
