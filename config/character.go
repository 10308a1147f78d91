package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentruntime/types"
)

// LoadCharacter reads a character file. ".yaml" and ".yml" are parsed as
// YAML, everything else as JSON. Missing ids and usernames are derived from
// the name.
func LoadCharacter(path string) (*types.Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character %s: %w", path, err)
	}
	c, err := ParseCharacter(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("character %s: %w", path, err)
	}
	return c, nil
}

// ParseCharacter decodes data in the format named by ext.
func ParseCharacter(data []byte, ext string) (*types.Character, error) {
	var c types.Character
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = types.StringToUUID(c.Name)
	}
	if c.Username == "" {
		c.Username = c.Name
	}
	return &c, nil
}

// AgentID 运行时配置优先，否则使用角色 id。
func (c *Config) AgentID(character *types.Character) string {
	if c.Runtime.AgentID != "" {
		return c.Runtime.AgentID
	}
	if character != nil {
		return character.ID
	}
	return ""
}
