// Package config holds the institution-level settings: the product catalog
// used to validate intake, notification behaviour, and server auth. The
// active config lives in the database; YAML is the import/export format.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Product struct {
	Name           string `yaml:"name" json:"name"`
	MinAmount      int64  `yaml:"min_amount" json:"min_amount"`
	MaxAmount      int64  `yaml:"max_amount" json:"max_amount"`
	DurationMonths []int  `yaml:"duration_months" json:"duration_months"`
}

func (p Product) AllowsDuration(months int) bool {
	if len(p.DurationMonths) == 0 {
		return months > 0
	}
	for _, d := range p.DurationMonths {
		if d == months {
			return true
		}
	}
	return false
}

type Notifications struct {
	// Email enables the outbound mailer; in-app notifications are always on.
	Email    bool   `yaml:"email" json:"email"`
	FromAddr string `yaml:"from_addr,omitempty" json:"from_addr,omitempty"`
	SMTPAddr string `yaml:"smtp_addr,omitempty" json:"smtp_addr,omitempty"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret,omitempty" json:"-"`
	// AllowLegacyActorHeader accepts X-Actor-Id without a credential. Meant
	// for local development and tests only.
	AllowLegacyActorHeader bool `yaml:"allow_legacy_actor_header" json:"allow_legacy_actor_header"`
}

type Config struct {
	Name          string        `yaml:"name" json:"name"`
	Bank          string        `yaml:"bank" json:"bank"`
	Products      []Product     `yaml:"products" json:"products"`
	Notifications Notifications `yaml:"notifications" json:"notifications"`
	Auth          Auth          `yaml:"auth" json:"auth"`
}

// Default is the catalog a fresh workspace starts with.
func Default() *Config {
	return &Config{
		Name: "default",
		Bank: "CreditLine",
		Products: []Product{
			{Name: "personal_loan", MinAmount: 1_000, MaxAmount: 50_000, DurationMonths: []int{12, 24, 36, 48}},
			{Name: "auto_loan", MinAmount: 5_000, MaxAmount: 100_000, DurationMonths: []int{24, 36, 48, 60, 72}},
			{Name: "mortgage", MinAmount: 50_000, MaxAmount: 2_000_000, DurationMonths: []int{120, 180, 240, 300}},
		},
		Notifications: Notifications{Email: false},
		Auth:          Auth{AllowLegacyActorHeader: true},
	}
}

func (c *Config) Product(name string) (Product, bool) {
	for _, p := range c.Products {
		if p.Name == name {
			return p, true
		}
	}
	return Product{}, false
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config name is required")
	}
	if len(c.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}
	seen := map[string]bool{}
	for i, p := range c.Products {
		if p.Name == "" {
			return fmt.Errorf("products[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("products[%d]: duplicate product %q", i, p.Name)
		}
		seen[p.Name] = true
		if p.MinAmount <= 0 {
			return fmt.Errorf("product %s: min_amount must be positive", p.Name)
		}
		if p.MaxAmount < p.MinAmount {
			return fmt.Errorf("product %s: max_amount below min_amount", p.Name)
		}
		for _, d := range p.DurationMonths {
			if d <= 0 {
				return fmt.Errorf("product %s: duration_months must be positive", p.Name)
			}
		}
	}
	return nil
}

func FromYAML(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
