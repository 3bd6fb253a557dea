package studio

// styleSuffix follows the style label in every composed prompt.
const styleSuffix = " style, masterpiece, ultra-detailed"

// Compose builds the prompt sent to the model from the user's description
// and the chosen style label.
func Compose(basePrompt, style string) string {
	return basePrompt + ", " + style + styleSuffix
}
