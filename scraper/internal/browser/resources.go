// CLAUDE:SUMMARY Intercepts and blocks configured resource types (images, fonts, media, stylesheets) on Rod tabs.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking hijacks the tab's requests and fails those of the
// blocked types. Product data lives in the DOM; images and fonts only cost
// bandwidth and time.
func applyResourceBlocking(p *rod.Page, types []string) error {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(strings.TrimSpace(t))] = true
	}

	router := p.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(blockSet, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return err
	}
	go router.Run()
	return nil
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)
	switch lower {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	}
	return blockSet[lower]
}
