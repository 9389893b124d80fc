package gemini

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/spigell/worky/internal/ai"
	"github.com/spigell/worky/internal/utils"
	"go.uber.org/zap"
)

type imageGenerator interface {
	GenerateWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

//go:embed receipt.md
var receiptPrompt string

// ReceiptReader reads payment screenshots with a vision-capable model.
type ReceiptReader struct {
	generator imageGenerator
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.ReceiptReader = (*ReceiptReader)(nil)

func NewReceiptReader(generator imageGenerator, logger *zap.Logger, maxLogLength int) *ReceiptReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptReader{generator: generator, logger: logger, maxLogLen: maxLogLength}
}

func (r *ReceiptReader) ReadReceipt(ctx context.Context, image []byte, mimeType string) (string, error) {
	if r == nil || r.generator == nil {
		return "", errors.New("receipt reader is not initialized")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	raw, err := r.generator.GenerateWithImage(ctx, receiptPrompt, image, mimeType)
	if err != nil {
		return "", fmt.Errorf("read receipt: %w", err)
	}

	r.logger.Debug("receipt response",
		zap.Int("image_bytes", len(image)),
		zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
	)
	return raw, nil
}
