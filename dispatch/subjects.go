package dispatch

import (
	"fmt"
	"strings"

	"github.com/next-trace/scg-comms-stack/config"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
)

// Subjects maps topic and service names to transport subjects.
type Subjects struct {
	prefix   string
	topics   map[string]string
	services map[string]string
	strict   bool
}

// NewSubjects builds the mapping from cfg. Names listed in cfg may carry a subject override;
// with strict targets only listed names resolve.
func NewSubjects(cfg config.Config) *Subjects {
	s := &Subjects{
		prefix:   cfg.SubjectPrefix,
		topics:   make(map[string]string, len(cfg.Topics)),
		services: make(map[string]string, len(cfg.Services)),
		strict:   cfg.StrictTargets,
	}

	for name, tc := range cfg.Topics {
		s.topics[name] = tc.Subject
	}

	for name, sc := range cfg.Services {
		s.services[name] = sc.Subject
	}

	return s
}

// ValidName rejects empty names and names a broker would read as a wildcard or split on.
func ValidName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", berr.ErrInvalidArgument)
	}

	if strings.ContainsAny(name, " \t\r\n*>#+") {
		return fmt.Errorf("name %q contains whitespace or wildcards: %w", name, berr.ErrInvalidArgument)
	}

	return nil
}

// Topic returns the subject notifications for topic travel on.
func (s *Subjects) Topic(topic string) (string, error) {
	return s.resolve("topic", topic, s.topics)
}

// Service returns the subject requests for service are sent to.
func (s *Subjects) Service(service string) (string, error) {
	return s.resolve("rpc", service, s.services)
}

// Inbox returns the reply subject of one stack instance.
func (s *Subjects) Inbox(app, id string) string {
	if app == "" {
		app = "anonymous"
	}

	return s.prefix + "._inbox." + app + "." + id
}

func (s *Subjects) resolve(kind, name string, overrides map[string]string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}

	subject, listed := overrides[name]
	if !listed && s.strict {
		return "", fmt.Errorf("%s %q not configured: %w", kind, name, berr.ErrUnknownTarget)
	}

	if subject != "" {
		return subject, nil
	}

	return s.prefix + "." + kind + "." + name, nil
}
