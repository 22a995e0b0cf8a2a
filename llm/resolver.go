package llm

import (
	"fmt"
	"strings"
)

// Resolve parses a model spec (string or map) and returns a Client. Only
// OpenAI-compatible endpoints are supported (spec.md §6): vLLM, Ollama,
// OpenAI itself, or any self-hosted gateway speaking the same wire format.
func Resolve(modelSpec any) (Client, string, error) {
	switch v := modelSpec.(type) {
	case string:
		return resolveString(v)
	case map[string]any:
		return resolveMap(v)
	default:
		return nil, "", fmt.Errorf("unsupported model spec type: %T", modelSpec)
	}
}

func resolveString(spec string) (Client, string, error) {
	parts := strings.SplitN(spec, ":", 2)
	provider := parts[0]
	model := ""
	if len(parts) > 1 {
		model = parts[1]
	}

	switch provider {
	case "ollama":
		return NewOpenAIClient("http://localhost:11434/v1", "ollama", model), model, nil
	case "openai":
		return nil, "", fmt.Errorf("openai provider requires map format with api_key (e.g. {\"provider\":\"openai\",\"model\":\"gpt-4\",\"api_key\":\"...\"})")
	case "vllm":
		return nil, "", fmt.Errorf("vllm provider requires map format with base_url (e.g. {\"provider\":\"vllm\",\"model\":\"...\",\"base_url\":\"...\"})")
	case "gateway":
		return nil, "", fmt.Errorf("gateway provider requires map format with base_url and api_key")
	default:
		// Try as an Ollama model (e.g. "llama3.1:8b")
		return NewOpenAIClient("http://localhost:11434/v1", "ollama", spec), spec, nil
	}
}

func resolveMap(spec map[string]any) (Client, string, error) {
	provider, _ := spec["provider"].(string)
	model, _ := spec["model"].(string)
	baseURL, _ := spec["base_url"].(string)
	apiKey, _ := spec["api_key"].(string)

	switch provider {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		return NewOpenAIClient(baseURL, "ollama", model), model, nil
	case "vllm":
		if baseURL == "" {
			return nil, "", fmt.Errorf("vllm provider requires base_url in model spec")
		}
		if apiKey == "" {
			apiKey = "dummy"
		}
		return NewOpenAIClient(baseURL, apiKey, model), model, nil
	case "openai":
		if apiKey == "" {
			return nil, "", fmt.Errorf("openai provider requires api_key in model spec")
		}
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIClient(baseURL, apiKey, model), model, nil
	case "gateway":
		if baseURL == "" {
			return nil, "", fmt.Errorf("gateway provider requires base_url in model spec")
		}
		if apiKey == "" {
			return nil, "", fmt.Errorf("gateway provider requires api_key in model spec")
		}
		return NewOpenAIClient(baseURL, apiKey, model), model, nil
	default:
		return nil, "", fmt.Errorf("unknown provider: %q", provider)
	}
}
