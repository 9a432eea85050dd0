package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

var errEmptyText = errors.New("no text extracted")

type extractFunc func(ctx context.Context, path string) (string, error)

type strategy struct {
	name string
	run  extractFunc
}

// attempt runs strategies in order and returns the first non-blank text.
// A strategy that errors, panics or returns blank text is logged and
// skipped. When all fail the joined failures are returned.
func attempt(ctx context.Context, path string, strategies ...strategy) (string, error) {
	var errs []error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		text, err := safeRun(ctx, s, path)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyText
		}
		if err != nil {
			log.Debug().Err(err).Str("path", path).Str("strategy", s.name).Msg("extraction strategy failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		return text, nil
	}
	if len(errs) == 0 {
		return "", errEmptyText
	}
	return "", errors.Join(errs...)
}

func safeRun(ctx context.Context, s strategy, path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	return s.run(ctx, path)
}
