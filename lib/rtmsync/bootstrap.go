// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/rtmsync/lib/labelrules"
	"github.com/bureau-foundation/rtmsync/lib/tracker"
)

// BootstrapLabels creates the canonical labels missing from the
// repository and returns them. Existing labels are matched
// case-insensitively and never modified. With dryRun set nothing is
// created. A label that fails to create is reported in the returned
// error; the others are still attempted.
func (s *Syncer) BootstrapLabels(ctx context.Context, dryRun bool) ([]labelrules.Definition, error) {
	vocabulary, err := s.loadVocabulary(ctx)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("rtmsync: loading snapshot: %w", err)
	}

	var created []labelrules.Definition
	var errs []error
	for _, definition := range labelrules.Canonical(snapshot) {
		if _, exists := vocabulary.Lookup(definition.Name); exists {
			continue
		}
		if !dryRun {
			err := s.tracker.CreateLabel(ctx, tracker.Label{
				Name:        definition.Name,
				Color:       definition.Color,
				Description: definition.Description,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("creating label %q: %w", definition.Name, err))
				continue
			}
			s.logger.Info("created label", "label", definition.Name)
		}
		created = append(created, definition)
	}
	return created, errors.Join(errs...)
}
