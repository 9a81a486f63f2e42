package llm

// RegisterDefaults registers the built-in provider constructors into
// factory. Both cmd/quench and cmd/worker call this so registration
// logic is not duplicated across binaries. The constructor is injected
// to avoid an import cycle with the openai subpackage.
func RegisterDefaults(factory *Factory, openaiCompatible func(apiKey, model, baseURL, embedModel string) Provider) {
	factory.Register("openai", func(c ProviderConfig) (Provider, error) {
		return openaiCompatible(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	for _, p := range []struct{ name, url string }{
		{"groq", KnownProviders["groq"]},
		{"huggingface", KnownProviders["huggingface"]},
		{"ollama", KnownProviders["ollama"]},
		{"together", KnownProviders["together"]},
		{"deepseek", KnownProviders["deepseek"]},
		{"vllm", KnownProviders["vllm"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c ProviderConfig) (Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openaiCompatible(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}
}
