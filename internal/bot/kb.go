package bot

import (
	"fmt"
	"strings"

	"github.com/m3rciful/roombot/core/faq"
	"github.com/m3rciful/roombot/internal/config"
)

// NewKnowledgeBase builds the configured knowledge base. The none backend
// returns nil, which disables the question service.
func NewKnowledgeBase(cfg config.KBConfig) (faq.KnowledgeBase, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", config.KBNone:
		return nil, nil
	case config.KBQnAMaker:
		kb, err := faq.NewQnAMaker(faq.QnAMakerOptions{
			Endpoint:        cfg.Endpoint,
			KnowledgeBaseID: cfg.KnowledgeBaseID,
			EndpointKey:     cfg.EndpointKey,
			Top:             cfg.Top,
			Timeout:         cfg.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		return kb, nil
	case config.KBStatic:
		kb, err := faq.LoadStaticKB(cfg.StaticFile)
		if err != nil {
			return nil, err
		}
		return kb, nil
	}
	return nil, fmt.Errorf("bot: unknown kb backend %q", cfg.Backend)
}
