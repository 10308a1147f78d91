// Package openaicompat provides a shared base implementation for every
// OpenAI-compatible model vendor in the catalogue.
//
// OpenAI, Groq, Together, Ollama, DeepSeek, OpenRouter, Venice and most of the
// smaller gateways speak the same Chat Completions format. Instead of one
// package per vendor, the factory builds an openaicompat.Provider from the
// catalogue entry and only overrides what differs:
//
//   - Provider name and default model
//   - Base URL (possibly rewritten to an AI gateway)
//   - Custom headers (if any)
//   - Request hooks for vendor-specific fields
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "deepseek",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.deepseek.com",
//	    DefaultModel: "deepseek-chat",
//	}, logger)
package openaicompat
