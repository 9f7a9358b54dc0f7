package config

import (
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Resolve returns the configured module IDs in sorted order so loading is
// deterministic.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ModulesIn returns the configured module IDs of one namespace, sorted.
func ModulesIn(cfg *Config, namespace string) []string {
	var ids []string
	for _, id := range Resolve(cfg) {
		if strings.HasPrefix(id, namespace+".") {
			ids = append(ids, id)
		}
	}
	return ids
}

var secretKey = regexp.MustCompile(`(?i)(api_key|apikey|token|pass|secret)`)

// Secrets collects the scalar values stored under secret-looking keys in
// module configurations, after environment expansion. They are handed to
// the log redactor.
func Secrets(cfg *Config) []string {
	var out []string
	for _, id := range Resolve(cfg) {
		node := cfg.Modules[id]
		collectSecrets(&node, false, &out)
	}
	return out
}

func collectSecrets(n *yaml.Node, secret bool, out *[]string) {
	switch n.Kind {
	case yaml.ScalarNode:
		if secret && n.Value != "" && n.ShortTag() == "!!str" {
			*out = append(*out, n.Value)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i].Value
			// max_tokens and similar counters are not secrets.
			isSecret := secretKey.MatchString(k) && !strings.HasPrefix(k, "max_")
			collectSecrets(n.Content[i+1], isSecret, out)
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, c := range n.Content {
			collectSecrets(c, secret, out)
		}
	}
}
