package dispatch

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/dm-dispatch/internal/domain"
)

// placeholderRe matches a bare identifier in one or more braces:
// {name}, {{name}}, {{ first_name }}. Expressions with filters are left to
// liquid untouched.
var placeholderRe = regexp.MustCompile(`\{+\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}+`)

// Renderer renders message variants with liquid. Unknown variables render
// as the empty string.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // normalized source -> *liquid.Template
}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()
	// {{ first_name | default: "there" }} also covers empty strings.
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})
	return &Renderer{engine: engine}
}

// Bindings builds the template variables for a recipient.
func Bindings(r domain.Recipient) map[string]interface{} {
	full := strings.TrimSpace(r.FullName)
	first, last := full, ""
	if i := strings.IndexByte(full, ' '); i > 0 {
		first, last = full[:i], strings.TrimSpace(full[i+1:])
	}
	name := full
	if name == "" {
		name = r.Username
	}
	if first == "" {
		first = r.Username
	}
	return map[string]interface{}{
		"name":       name,
		"full_name":  full,
		"first_name": first,
		"last_name":  last,
		"username":   r.Username,
	}
}

// Render normalizes single-brace placeholders and renders src.
func (rd *Renderer) Render(src string, bindings map[string]interface{}) (string, error) {
	normalized := placeholderRe.ReplaceAllString(src, "{{ $1 }}")

	var tpl *liquid.Template
	if cached, ok := rd.cache.Load(normalized); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := rd.engine.ParseString(normalized)
		if err != nil {
			return fallbackRender(src, bindings), fmt.Errorf("parse template: %w", err)
		}
		rd.cache.Store(normalized, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return fallbackRender(src, bindings), fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// fallbackRender substitutes plain placeholders only, for templates liquid
// rejects. Unknown names still render empty.
func fallbackRender(src string, bindings map[string]interface{}) string {
	return placeholderRe.ReplaceAllStringFunc(src, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := bindings[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
		return ""
	})
}

// PickVariant chooses one of the step's non-empty variants. The choice is
// stable for a (recipient, step) pair so a re-pulled job renders the same.
func PickVariant(recipientID string, step domain.CampaignStep) string {
	var variants []string
	for _, v := range step.Variants {
		if strings.TrimSpace(v) != "" {
			variants = append(variants, v)
		}
	}
	if len(variants) == 0 {
		return ""
	}
	h := fnv.New32a()
	h.Write([]byte(domain.FormatJobID(recipientID, step.Order)))
	return variants[h.Sum32()%uint32(len(variants))]
}
