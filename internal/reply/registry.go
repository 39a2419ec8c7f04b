// Package reply decides what PuffleBot answers. Rules match on keywords or
// a regular expression; the loop turns matched replies into outbound messages.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/masganem/PuffleBot/internal/domain"
)

// Registry holds rules in registration order. The first matching rule wins.
type Registry struct {
	mu       sync.RWMutex
	rules    []Rule
	patterns map[string]*regexp.Regexp
	keywords map[string][]string // lowercased
	fallback []domain.Reply
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		patterns: make(map[string]*regexp.Regexp),
		keywords: make(map[string][]string),
		logger:   logger,
	}
}

// Register adds rule, replacing a rule with the same name in place.
func (r *Registry) Register(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("rule %q: %w", rule.Name, err)
	}
	var re *regexp.Regexp
	if rule.Pattern != "" {
		var err error
		if re, err = regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("rule %q: pattern: %w", rule.Name, err)
		}
	}

	kws := make([]string, len(rule.Keywords))
	for i, kw := range rule.Keywords {
		kws[i] = strings.ToLower(kw)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.keywords[rule.Name] = kws
	if re != nil {
		r.patterns[rule.Name] = re
	} else {
		delete(r.patterns, rule.Name)
	}

	for i, existing := range r.rules {
		if existing.Name == rule.Name {
			r.rules[i] = rule
			r.logger.Debug("reply rule replaced", "name", rule.Name)
			return nil
		}
	}
	r.rules = append(r.rules, rule)
	r.logger.Debug("reply rule registered", "name", rule.Name)
	return nil
}

// SetFallback sets the replies used when no rule matches. Nil disables it.
func (r *Registry) SetFallback(replies []domain.Reply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = replies
}

// Match returns the first rule matching input, or nil.
func (r *Registry) Match(input string) *Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(input)
	for i := range r.rules {
		rule := &r.rules[i]
		for _, kw := range r.keywords[rule.Name] {
			if strings.Contains(lower, kw) {
				return rule
			}
		}
		if re, ok := r.patterns[rule.Name]; ok && re.MatchString(input) {
			return rule
		}
	}
	return nil
}

// Respond implements domain.Responder.
func (r *Registry) Respond(ctx context.Context, msg domain.InboundMessage) []domain.Reply {
	var replies []domain.Reply
	if rule := r.Match(msg.Content); rule != nil {
		r.logger.Debug("reply rule matched", "rule", rule.Name, "sender", msg.SenderID)
		replies = rule.Replies
	} else {
		r.mu.RLock()
		replies = r.fallback
		r.mu.RUnlock()
	}

	name := msg.SenderName
	if name == "" {
		name = "friend"
	}
	out := make([]domain.Reply, len(replies))
	for i, rep := range replies {
		out[i] = domain.Reply{
			Text:     strings.ReplaceAll(rep.Text, "{name}", name),
			MediaURL: rep.MediaURL,
		}
	}
	return out
}

// List returns a copy of the registered rules.
func (r *Registry) List() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}
