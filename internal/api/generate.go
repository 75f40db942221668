package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
)

// Send sends message with the given history and returns the reply text.
// Transient failures are retried with exponential backoff.
func (c *GeminiClient) Send(ctx context.Context, history []models.Turn, message string, maxTokens int) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", apperrors.ErrEmptyInput
	}

	model := c.ModelName()
	contents := buildContents(history, message)
	config := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}

	var text string
	attempt := 0
	op := func() error {
		attempt++
		resp, err := c.generate(ctx, model, contents, config)
		if err != nil {
			terr := classifyError(ctx, err)
			if !terr.Transient {
				return backoff.Permanent(terr)
			}
			return terr
		}

		t, err := responseText(resp)
		if err != nil {
			return backoff.Permanent(err)
		}
		text = t
		return nil
	}

	start := time.Now()
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Str("model", model).
			Msg("Transient model error, retrying")
	}

	if err := backoff.RetryNotify(op, c.retry.backOff(ctx), notify); err != nil {
		var terr *apperrors.TransportError
		if !errors.As(err, &terr) {
			terr = apperrors.NewTransportError(0, false, err)
		}
		log.Error().Err(terr).Int("attempts", attempt).Str("model", model).Msg("Model request failed")
		return "", terr
	}

	log.Debug().
		Int("attempts", attempt).
		Dur("elapsed", time.Since(start)).
		Int("history", len(history)).
		Str("model", model).
		Msg("Model request succeeded")
	return text, nil
}

// buildContents converts history plus the new message into genai contents.
// Parts without text are not sent.
func buildContents(history []models.Turn, message string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		var parts []*genai.Part
		for _, p := range turn.Parts {
			if p.IsText() {
				parts = append(parts, genai.NewPartFromText(p.Text))
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, roleToGenai(turn.Role)))
	}
	return append(contents, genai.NewContentFromText(message, genai.RoleUser))
}

func roleToGenai(r models.Role) genai.Role {
	if r == models.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// responseText extracts the reply, failing permanently when the model
// returned no text (blocked prompt, safety stop).
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", apperrors.NewTransportError(0, false, fmt.Errorf("empty response"))
	}

	text := resp.Text()
	if text != "" {
		return text, nil
	}

	reason := "unknown"
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		reason = fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	} else if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		reason = fmt.Sprintf("finish reason: %s", resp.Candidates[0].FinishReason)
	}
	return "", apperrors.NewTransportError(0, false, fmt.Errorf("no text in response (%s)", reason))
}
