package reply

import "github.com/masganem/PuffleBot/internal/domain"

// DefaultFallback is sent when nothing matches.
var DefaultFallback = []domain.Reply{
	{Text: "Sorry {name}, I didn't get that. Try \"adopt\", \"feed\", \"play\" or \"check\"."},
}

var builtins = []Rule{
	{
		Name:     "greeting",
		Keywords: []string{"hello"},
		Pattern:  `(?i)^\s*(hi|hey|oi|ola)\b`,
		Replies: []domain.Reply{
			{Text: "Hi {name}! I take care of puffles. Say \"adopt\" to get one of your own."},
		},
	},
	{
		Name:     "adopt",
		Keywords: []string{"adopt", "adotar"},
		Replies: []domain.Reply{
			{Text: "Here is your new puffle, {name}! Keep it fed and happy."},
			{Text: "Say \"feed\" when it gets hungry and \"play\" when it gets bored."},
		},
	},
	{
		Name:     "feed",
		Keywords: []string{"feed", "food", "alimentar"},
		Replies: []domain.Reply{
			{Text: "Nom nom! Your puffle is full again."},
		},
	},
	{
		Name:     "play",
		Keywords: []string{"play", "brincar"},
		Replies: []domain.Reply{
			{Text: "Your puffle had a great time playing with you, {name}!"},
		},
	},
	{
		Name:     "check",
		Keywords: []string{"check", "status", "how is"},
		Replies: []domain.Reply{
			{Text: "Your puffle is doing fine. Don't forget to feed it and play with it every day."},
		},
	},
}

// RegisterBuiltins adds the built-in pet rules and the default fallback.
// Rules registered later under the same name replace them.
func (r *Registry) RegisterBuiltins() {
	for _, rule := range builtins {
		rule.BuiltIn = true
		if err := r.Register(rule); err != nil {
			r.logger.Error("builtin reply rule", "rule", rule.Name, "err", err)
		}
	}
	r.SetFallback(DefaultFallback)
}
