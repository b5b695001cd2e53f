// Package content renders message bodies with the Liquid template language,
// binding customer fields for personalization.
package content

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// Renderer renders Liquid templates with parsed-template caching.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// Default value filter: {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Currency formatting: {{ total_spent | currency }}
	engine.RegisterFilter("currency", func(v float64) string {
		return fmt.Sprintf("$%.2f", v)
	})

	return &Renderer{engine: engine}
}

// Render renders template text against the given bindings. A template that
// fails to parse or render falls back to the raw text so a bad template never
// blocks a send.
func (r *Renderer) Render(text string, bindings map[string]any) string {
	if !strings.Contains(text, "{{") && !strings.Contains(text, "{%") {
		return text
	}

	var tpl *liquid.Template
	if cached, ok := r.cache.Load(text); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(text)
		if err != nil {
			return text
		}
		r.cache.Store(text, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return text
	}
	return out
}

// CustomerBindings exposes the customer fields available to templates.
func CustomerBindings(c domain.Customer) map[string]any {
	return map[string]any{
		"first_name":     c.FirstName,
		"last_name":      c.LastName,
		"email":          c.Email,
		"loyalty_tier":   c.LoyaltyTier,
		"loyalty_points": c.LoyaltyPoints,
		"total_spent":    c.TotalSpent,
	}
}
