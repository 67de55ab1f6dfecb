package rules

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"crm-sync-gateway/crmsync/domain"

	"gopkg.in/yaml.v3"
)

//go:embed targets.yaml
var defaultTargets []byte

// Config é o arquivo de destinos carregado na inicialização.
type Config struct {
	Targets map[string]TargetConfig `yaml:"targets"`
}

type TargetConfig struct {
	// RateLimit é o limite por janela do destino. 0 usa o padrão do limiter.
	RateLimit int               `yaml:"rate_limit"`
	Rules     map[string]string `yaml:"rules"`
}

// Load lê a configuração em YAML.
func Load(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode targets: %w", err)
	}
	if len(cfg.Targets) == 0 {
		return Config{}, fmt.Errorf("decode targets: no targets defined")
	}
	for name, t := range cfg.Targets {
		if strings.TrimSpace(name) == "" {
			return Config{}, fmt.Errorf("decode targets: empty target name")
		}
		if t.RateLimit < 0 {
			return Config{}, fmt.Errorf("decode targets: %s: rate_limit must be >= 0", name)
		}
	}
	return cfg, nil
}

// LoadFile lê path; vazio usa a tabela embutida.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open targets: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Default devolve a tabela embutida (salesforce e hubspot).
func Default() Config {
	cfg, err := Load(strings.NewReader(string(defaultTargets)))
	if err != nil {
		panic(err)
	}
	return cfg
}

// Table converte as tags textuais em condições. Tags desconhecidas viram Unknown.
func (c Config) Table() Table {
	t := make(Table, len(c.Targets))
	for name, target := range c.Targets {
		ops := make(map[domain.Operation]Condition, len(target.Rules))
		for op, tag := range target.Rules {
			ops[domain.ParseOperation(op)] = ParseCondition(tag)
		}
		t[name] = ops
	}
	return t
}

// Limits devolve os limites por destino definidos no arquivo.
func (c Config) Limits() map[string]int {
	out := make(map[string]int, len(c.Targets))
	for name, t := range c.Targets {
		if t.RateLimit > 0 {
			out[name] = t.RateLimit
		}
	}
	return out
}

func (c Config) Engine() *Engine { return NewEngine(c.Table()) }
