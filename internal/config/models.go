package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// fallbackModel is used when neither a models file nor LLM_MODEL names one.
const fallbackModel = "gpt-4o-mini"

// Model represents an available LLM model
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// ModelsConfig holds the available models configuration
type ModelsConfig struct {
	models []Model
}

// NewModelsConfig creates a new models configuration from a file
func NewModelsConfig(configPath string) (*ModelsConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var models []Model
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return &ModelsConfig{models: models}, nil
}

// NewStaticModelsConfig builds a models configuration from model ids; empty ids are skipped
func NewStaticModelsConfig(ids ...string) *ModelsConfig {
	mc := &ModelsConfig{}
	for _, id := range ids {
		if id != "" {
			mc.models = append(mc.models, Model{ID: id, Name: id})
		}
	}
	return mc
}

// GetAvailableModels returns the list of available models
func (mc *ModelsConfig) GetAvailableModels() []Model {
	return mc.models
}

// IsValidModel checks if a model ID is in the list of available models
func (mc *ModelsConfig) IsValidModel(modelID string) bool {
	for _, model := range mc.models {
		if model.ID == modelID {
			return true
		}
	}
	return false
}

// GetDefaultModel returns the first model as the default
func (mc *ModelsConfig) GetDefaultModel() string {
	if mc != nil && len(mc.models) > 0 {
		return mc.models[0].ID
	}
	return fallbackModel
}
