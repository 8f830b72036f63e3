package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const imageModerationPrompt = `You review user-uploaded photos for a civic discussion platform.
Decide whether the image is safe to display publicly. Unsafe images contain nudity,
graphic violence, gore, or imagery promoting hate or harassment. Political imagery,
protest photos, and campaign material are safe.
Reply with a JSON object: {"safe": true|false, "reason": "<short reason when unsafe>"}`

// ImageDecision is the verdict for a single uploaded photo.
type ImageDecision struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason"`
}

type visionContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *visionImageURL `json:"image_url,omitempty"`
}

type visionImageURL struct {
	URL string `json:"url"`
}

type visionMessage struct {
	Role    string              `json:"role"`
	Content []visionContentPart `json:"content"`
}

type visionRequest struct {
	Messages       []visionMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// ModerateImage asks the vision-capable chat deployment whether a photo is safe
// to display. The image is passed by URL, not re-uploaded.
func (c *Client) ModerateImage(ctx context.Context, imageURL string) (*ImageDecision, error) {
	reqBody := visionRequest{
		Messages: []visionMessage{
			{
				Role: "system",
				Content: []visionContentPart{
					{Type: "text", Text: imageModerationPrompt},
				},
			},
			{
				Role: "user",
				Content: []visionContentPart{
					{Type: "text", Text: "Review this photo."},
					{Type: "image_url", ImageURL: &visionImageURL{URL: imageURL}},
				},
			},
		},
		MaxTokens:      200,
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var result chatResponse
	if err := c.post(ctx, c.chatDeployment, "chat/completions", reqBody, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, fmt.Errorf("ai: azure openai error: %s: %s", result.Error.Code, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, errors.New("ai: empty vision response")
	}

	var decision ImageDecision
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &decision); err != nil {
		return nil, fmt.Errorf("ai: unmarshal vision reply: %w", err)
	}
	return &decision, nil
}
