// Package setup implements the single-step flow that creates the bridge's config entry. Only one entry may exist; the
// flow aborts if one is already present.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	tllog "github.com/nlowe/techlife/log"
	"github.com/nlowe/techlife/store"
)

const (
	// Domain identifies config entries created by this flow.
	Domain = "techlife_pro"
	// Title is the title of the created config entry.
	Title = "TechLife Pro"
	// Version is the schema version of created config entries.
	Version = 1

	// StepUser is the only step of the flow.
	StepUser = "user"

	// ReasonSingleInstanceAllowed is the abort reason when an entry already exists.
	ReasonSingleInstanceAllowed = "single_instance_allowed"

	// PlaceholderMoreInfo is the description placeholder shown on the confirmation form.
	PlaceholderMoreInfo = "more_info"
)

// Messages maps abort reasons and description placeholders to the text shown to the user.
var Messages = map[string]string{
	ReasonSingleInstanceAllowed: "Only a single TechLife Pro configuration is allowed.",
	PlaceholderMoreInfo:         "Make sure your MQTT broker is configured and DNS redirection is active.",
}

// ResultType is the kind of Result a step produced.
type ResultType string

const (
	// ResultForm asks the user to confirm the form for Result.StepID.
	ResultForm ResultType = "form"
	// ResultCreateEntry reports that Result.Entry was created.
	ResultCreateEntry ResultType = "create_entry"
	// ResultAbort reports that the flow stopped for Result.Reason.
	ResultAbort ResultType = "abort"
)

// Result is the outcome of a flow step. It implements slog.LogValuer.
type Result struct {
	Type ResultType

	// Set for ResultForm
	StepID string
	// Set for ResultForm
	DescriptionPlaceholders map[string]string

	// Set for ResultCreateEntry
	Entry *store.Entry

	// Set for ResultAbort
	Reason string
}

func (r Result) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("type", string(r.Type))}

	switch r.Type {
	case ResultForm:
		attrs = append(attrs, slog.String("step", r.StepID))
	case ResultCreateEntry:
		attrs = append(attrs, slog.String("entry", r.Entry.ID))
	case ResultAbort:
		attrs = append(attrs, slog.String("reason", r.Reason))
	}

	return slog.GroupValue(attrs...)
}

// Message returns the human-readable text for an aborted result, or the empty string.
func (r Result) Message() string {
	if r.Type != ResultAbort {
		return ""
	}

	return Messages[r.Reason]
}

// UserInput is what the user submitted on the confirmation form. The form has no fields.
type UserInput struct{}

// EntryStore persists config entries. store.Store implements it.
type EntryStore interface {
	Entries(ctx context.Context, domain string) ([]store.Entry, error)
	Create(ctx context.Context, e store.Entry) error
}

// Flow runs the setup steps against an EntryStore.
type Flow struct {
	entries EntryStore
	now     func() time.Time

	log *slog.Logger
}

func NewFlow(entries EntryStore) *Flow {
	return &Flow{
		entries: entries,
		now:     time.Now,

		log: tllog.ForComponent("setup"),
	}
}

func abort(reason string) Result {
	return Result{Type: ResultAbort, Reason: reason}
}

// StepUser runs the user step. If an entry already exists the flow aborts with ReasonSingleInstanceAllowed. With a nil
// input the confirmation form is returned; otherwise exactly one entry is created.
func (f *Flow) StepUser(ctx context.Context, input *UserInput) (Result, error) {
	existing, err := f.entries.Entries(ctx, Domain)
	if err != nil {
		return Result{}, fmt.Errorf("setup: list entries: %w", err)
	}

	if len(existing) > 0 {
		f.log.With(slog.String("entry", existing[0].ID)).Debug("Config entry already exists")
		return abort(ReasonSingleInstanceAllowed), nil
	}

	if input == nil {
		return Result{
			Type:   ResultForm,
			StepID: StepUser,
			DescriptionPlaceholders: map[string]string{
				PlaceholderMoreInfo: Messages[PlaceholderMoreInfo],
			},
		}, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Result{}, fmt.Errorf("setup: generate entry id: %w", err)
	}

	e := store.Entry{
		ID:        id.String(),
		Domain:    Domain,
		Title:     Title,
		Version:   Version,
		Data:      map[string]any{},
		CreatedAt: f.now(),
	}

	if err = f.entries.Create(ctx, e); err != nil {
		if errors.Is(err, store.ErrEntryExists) {
			return abort(ReasonSingleInstanceAllowed), nil
		}

		return Result{}, fmt.Errorf("setup: create entry: %w", err)
	}

	f.log.With(slog.String("entry", e.ID)).Info("Created config entry")
	return Result{Type: ResultCreateEntry, Entry: &e}, nil
}

// Configured reports whether a config entry exists.
func (f *Flow) Configured(ctx context.Context) (bool, error) {
	existing, err := f.entries.Entries(ctx, Domain)
	if err != nil {
		return false, fmt.Errorf("setup: list entries: %w", err)
	}

	return len(existing) > 0, nil
}
