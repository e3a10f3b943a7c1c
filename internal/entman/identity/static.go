package identity

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stuvusIT/entman/internal/entman/types"
)

type StaticPolicy struct {
	AllowAll bool
	// Tokens maps each allowed token to the name reported for it.
	Tokens map[string]string
}

// StaticVerifier decides from a fixed allow-list held in memory.
type StaticVerifier struct {
	policy StaticPolicy
}

func NewStaticVerifier(policy StaticPolicy) *StaticVerifier {
	tokens := make(map[string]string, len(policy.Tokens))
	for tok, name := range policy.Tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens[tok] = name
		}
	}
	policy.Tokens = tokens
	return &StaticVerifier{policy: policy}
}

func (v *StaticVerifier) Access(_ context.Context, token string) (types.AccessResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return denied(ReasonMissingToken), nil
	}

	if name, ok := v.policy.Tokens[token]; ok {
		return granted(name, ReasonTokenAllowed), nil
	}
	if v.policy.AllowAll {
		return granted("", ReasonAllowAll), nil
	}
	return denied(ReasonTokenNotAllowed), nil
}

type tokensFile struct {
	Tokens []struct {
		Token string `yaml:"token"`
		Name  string `yaml:"name"`
	} `yaml:"tokens"`
}

// LoadTokensFile reads an allow-list of the form
//
//	tokens:
//	  - token: 3f9c0a7e
//	    name: Front desk
func LoadTokensFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens file: %w", err)
	}

	var f tokensFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse tokens file %s: %w", path, err)
	}

	out := make(map[string]string, len(f.Tokens))
	for i, t := range f.Tokens {
		tok := strings.TrimSpace(t.Token)
		if tok == "" {
			return nil, fmt.Errorf("tokens file %s: entry %d has no token", path, i)
		}
		if _, dup := out[tok]; dup {
			return nil, fmt.Errorf("tokens file %s: duplicate token at entry %d", path, i)
		}
		out[tok] = t.Name
	}
	return out, nil
}
