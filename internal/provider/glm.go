package provider

// GLMBaseURL is the OpenAI-compatible endpoint for Zhipu GLM models
const GLMBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// NewGLM creates a provider for GLM models. The GLM API is
// OpenAI-compatible, so this reuses the OpenAI adapter with the GLM
// endpoint and provider name.
func NewGLM(apiKey, model string, maxTokens int) *OpenAIProvider {
	return NewOpenAI(OpenAIConfig{
		APIKey:       apiKey,
		BaseURL:      GLMBaseURL,
		Model:        model,
		MaxTokens:    maxTokens,
		ProviderName: "glm",
	})
}
