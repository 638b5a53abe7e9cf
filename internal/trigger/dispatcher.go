// Package trigger implements the trigger execution stage (spec §4.9):
// flattening a MatchRecord into template variables, rendering each
// trigger's title/body, and dispatching to the channel-specific notifier.
// Handle returns only once every dispatch for the block has finished, so the
// watcher's stage 2 waits for it; a failed trigger is logged and never
// aborts the pipeline.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/infrastructure/metrics"
	"github.com/chainwatch/monitor/infrastructure/secrets"
	"github.com/chainwatch/monitor/internal/model"
	"github.com/chainwatch/monitor/internal/notify/email"
	"github.com/chainwatch/monitor/internal/notify/script"
	"github.com/chainwatch/monitor/internal/notify/telegram"
	"github.com/chainwatch/monitor/internal/notify/webhook"
)

// TriggerSource resolves a trigger by ID. Satisfied by *infrastructure/config.Bundle.
type TriggerSource interface {
	Lookup(id string) (*model.Trigger, bool)
}

// Dispatcher fans each MatchRecord's TriggerIDs out to the appropriate
// channel-specific notifier, dispatching every match, and every trigger of
// a match, concurrently.
type Dispatcher struct {
	triggers TriggerSource
	resolver *secrets.Resolver
	logger   *logging.Logger
	metrics  *metrics.Metrics

	webhook  *webhook.Client
	email    *email.Client
	telegram *telegram.Client
	script   *script.Runner
}

// NewDispatcher wires a Dispatcher from its dependencies.
func NewDispatcher(triggers TriggerSource, resolver *secrets.Resolver, logger *logging.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		triggers: triggers,
		resolver: resolver,
		logger:   logger,
		metrics:  m,
		webhook:  webhook.New(),
		email:    email.New(),
		telegram: telegram.New(),
		script:   script.New(),
	}
}

// Handle implements internal/watcher.TriggerHandler and internal/recovery's
// equivalent: every match in block is dispatched to its configured
// triggers, each trigger running independently and concurrently. It
// returns once all of them have finished.
func (d *Dispatcher) Handle(ctx context.Context, block model.ProcessedBlock) {
	var wg sync.WaitGroup
	for _, match := range block.Matches {
		match := match
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.dispatchMatch(ctx, match)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) dispatchMatch(ctx context.Context, match model.MatchRecord) {
	vars := Flatten(match)
	var signatures []string
	for _, sig := range match.Signatures {
		signatures = append(signatures, sig.Signature)
	}

	var wg sync.WaitGroup
	for _, id := range match.TriggerIDs {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			trig, ok := d.triggers.Lookup(id)
			if !ok {
				err := errors.New(errors.KindTrigger, "trigger", fmt.Sprintf("trigger %q not found", id))
				d.logger.LogTriggerDispatch(ctx, id, "unknown", err)
				d.metrics.RecordTriggerDispatch("unknown", err)
				return
			}

			err := d.dispatchOne(ctx, trig, vars, match)
			d.logger.LogTriggerDispatch(ctx, trig.Name, string(trig.Kind), err)
			d.metrics.RecordTriggerDispatch(string(trig.Kind), err)
			if err == nil {
				d.logger.LogMatch(ctx, match.Network, match.Monitor, match.TxHash, signatures)
			}
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) dispatchOne(ctx context.Context, trig *model.Trigger, vars map[string]string, match model.MatchRecord) error {
	switch trig.Kind {
	case model.TriggerWebhook, model.TriggerSlack, model.TriggerDiscord:
		if trig.Webhook == nil {
			return errors.New(errors.KindTrigger, "trigger", "webhook trigger missing config")
		}
		title := Render(trig.Webhook.Template.Title, vars)
		body := Render(trig.Webhook.Template.Body, vars)
		return d.webhook.Send(ctx, trig.Webhook, d.resolver, title, body)
	case model.TriggerEmail:
		if trig.Email == nil {
			return errors.New(errors.KindTrigger, "trigger", "email trigger missing config")
		}
		subject := Render(trig.Email.Template.Title, vars)
		body := Render(trig.Email.Template.Body, vars)
		return d.email.Send(ctx, trig.Email, d.resolver, subject, body)
	case model.TriggerTelegram:
		if trig.Telegram == nil {
			return errors.New(errors.KindTrigger, "trigger", "telegram trigger missing config")
		}
		title := Render(trig.Telegram.Template.Title, vars)
		body := Render(trig.Telegram.Template.Body, vars)
		return d.telegram.Send(ctx, trig.Telegram, d.resolver, title, body)
	case model.TriggerScript:
		if trig.Script == nil {
			return errors.New(errors.KindTrigger, "trigger", "script trigger missing config")
		}
		return d.runScript(ctx, trig, match)
	default:
		return errors.New(errors.KindTrigger, "trigger", fmt.Sprintf("unknown trigger kind %q", trig.Kind))
	}
}

// runScript passes the raw match record as the script's JSON input, not
// the rendered title/body — spec §4.9 gives scripts the full record.
func (d *Dispatcher) runScript(ctx context.Context, trig *model.Trigger, match model.MatchRecord) error {
	ok, err := d.script.Run(ctx, trig.Script, match)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.KindTrigger, "trigger", "script returned false")
	}
	return nil
}
