package dispatch_test

import (
	"errors"
	"testing"

	"github.com/next-trace/scg-comms-stack/config"
	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	"github.com/next-trace/scg-comms-stack/dispatch"
)

func TestSubjects(t *testing.T) {
	cfg := config.Default()
	cfg.Topics = map[string]config.TopicConfig{"news": {Subject: "custom.news"}}
	cfg.Services = map[string]config.ServiceConfig{"calc": {}}

	s := dispatch.NewSubjects(cfg)

	if got, _ := s.Topic("news"); got != "custom.news" {
		t.Fatalf("override ignored: %s", got)
	}

	if got, _ := s.Topic("weather"); got != "comms.topic.weather" {
		t.Fatalf("topic subject: %s", got)
	}

	if got, _ := s.Service("calc"); got != "comms.rpc.calc" {
		t.Fatalf("service subject: %s", got)
	}

	if got := s.Inbox("demo", "abc"); got != "comms._inbox.demo.abc" {
		t.Fatalf("inbox: %s", got)
	}

	cfg.StrictTargets = true
	strict := dispatch.NewSubjects(cfg)

	if _, err := strict.Service("other"); !errors.Is(err, berr.ErrUnknownTarget) {
		t.Fatalf("strict service: %v", err)
	}

	if _, err := strict.Service("calc"); err != nil {
		t.Fatalf("listed service: %v", err)
	}
}
