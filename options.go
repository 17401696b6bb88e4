package herald

import "context"

// OptionText is the display text of a select menu option.
type OptionText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Option is a single entry in an external select menu response.
type Option struct {
	Text  OptionText `json:"text"`
	Value string     `json:"value"`
}

// OptionsProvider computes the option list served from the options endpoint.
// The payload is the decoded interactive payload that requested the options,
// so providers can filter on action ID, typed value, or requesting user.
type OptionsProvider func(ctx context.Context, payload map[string]any) []Option

// PlainTextOption builds an option with plain_text display text.
func PlainTextOption(text, value string) Option {
	return Option{
		Text:  OptionText{Type: "plain_text", Text: text},
		Value: value,
	}
}

// StaticOptions returns a provider that always serves the same option list.
func StaticOptions(opts ...Option) OptionsProvider {
	return func(context.Context, map[string]any) []Option {
		return opts
	}
}
