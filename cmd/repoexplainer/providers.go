package main

// Each import registers an LLM provider with the llm registry.
import (
	_ "github.com/BaoNguyen09/repo-explainer/internal/adapter/anthropic"
	_ "github.com/BaoNguyen09/repo-explainer/internal/adapter/gemini"
	_ "github.com/BaoNguyen09/repo-explainer/internal/adapter/litellm"
)
