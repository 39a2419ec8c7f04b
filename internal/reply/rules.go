package reply

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/masganem/PuffleBot/internal/domain"
)

// Rule maps matching user text to the replies sent back, in order.
type Rule struct {
	Name     string         `yaml:"name"`
	Keywords []string       `yaml:"keywords,omitempty"`
	Pattern  string         `yaml:"pattern,omitempty"`
	Replies  []domain.Reply `yaml:"replies"`
	BuiltIn  bool           `yaml:"-"`
}

// Validate checks that the rule can match something and has something to say.
func (r Rule) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(r.Keywords) == 0 && r.Pattern == "" {
		errs = append(errs, errors.New("keywords or pattern is required"))
	}
	if len(r.Replies) == 0 {
		errs = append(errs, errors.New("at least one reply is required"))
	}
	for i, rep := range r.Replies {
		if rep.Text == "" && rep.MediaURL == "" {
			errs = append(errs, fmt.Errorf("reply %d is empty", i))
		}
	}
	return errors.Join(errs...)
}

// ruleFile is the on-disk shape: either a single rule or a list under "rules".
type ruleFile struct {
	Rule  `yaml:",inline"`
	Rules []Rule `yaml:"rules,omitempty"`
}

// Load reads rules from path, which may be a single YAML file or a directory
// of .yaml/.yml files. A missing path yields no rules.
func Load(path string, logger *slog.Logger) ([]Rule, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("reply rules path does not exist, skipping", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat rules: %w", err)
	}
	if !info.IsDir() {
		return LoadFile(path)
	}
	return LoadDirectory(path, logger)
}

// LoadDirectory loads every rule file in dir. Unreadable or invalid files are
// logged and skipped.
func LoadDirectory(dir string, logger *slog.Logger) ([]Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read rules dir: %w", err)
	}

	var rules []Rule
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)
		loaded, err := LoadFile(path)
		if err != nil {
			logger.Warn("skipping reply rule file", "path", path, "err", err)
			continue
		}
		logger.Info("loaded reply rules", "path", path, "count", len(loaded))
		rules = append(rules, loaded...)
	}
	return rules, nil
}

// LoadFile parses one rule file. A single unnamed rule takes its name from
// the file name.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	rules := f.Rules
	if len(rules) == 0 {
		r := f.Rule
		if r.Name == "" {
			base := filepath.Base(path)
			r.Name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		rules = []Rule{r}
	}

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s: rule %q: %w", path, r.Name, err)
		}
	}
	return rules, nil
}
