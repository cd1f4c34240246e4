package browser

import (
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// openTab creates a stealth tab with resource blocking applied.
func openTab(b *rod.Browser, blocking []string, logger *slog.Logger) (*rod.Page, error) {
	p, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	if len(blocking) > 0 {
		if err := applyResourceBlocking(p, blocking); err != nil {
			logger.Warn("browser: resource blocking failed", "error", err)
		}
	}
	return p, nil
}
