package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

const (
	// maxCategoryLinks caps commonly-used-with edges per template so a
	// crowded category does not produce a complete graph.
	maxCategoryLinks = 5

	// alternativeOverlap is the minimum Jaccard similarity between title
	// token sets for two templates to count as alternatives.
	alternativeOverlap = 0.5
)

// InferRelationships recomputes derived edges for the given templates.
// Templates sharing a category are linked commonly-used-with (capped);
// same-category templates whose titles overlap strongly are linked as
// alternatives. Edges are applied with replace-all semantics, so a
// template's derived edges always reflect the latest pass.
func (s *catalogService) InferRelationships(ctx context.Context, templateIDs []string) error {
	if len(templateIDs) == 0 {
		return nil
	}

	all, err := s.db.ListTemplates(ctx, nil)
	if err != nil {
		return err
	}

	byCategory := make(map[string][]*models.Template)
	for _, tpl := range all {
		if tpl.Status == models.StatusArchived {
			continue
		}
		byCategory[tpl.Category] = append(byCategory[tpl.Category], tpl)
	}
	for _, group := range byCategory {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
	}

	byID := make(map[string]*models.Template, len(all))
	for _, tpl := range all {
		byID[tpl.ID] = tpl
	}

	for _, id := range templateIDs {
		tpl, ok := byID[id]
		if !ok {
			continue
		}

		rels := inferForTemplate(tpl, byCategory[tpl.Category])
		if err := s.db.UpdateRelationships(ctx, id, rels); err != nil {
			return err
		}
		s.logger.Debug("relationships updated",
			zap.String("id", id),
			zap.Int("edges", len(rels)),
		)
	}
	return nil
}

func inferForTemplate(tpl *models.Template, categoryPeers []*models.Template) []models.Relationship {
	var rels []models.Relationship

	tokens := titleTokens(tpl.Title)
	linked := 0
	for _, peer := range categoryPeers {
		if peer.ID == tpl.ID {
			continue
		}
		if linked < maxCategoryLinks {
			rels = append(rels, models.Relationship{
				TargetID: peer.ID,
				Type:     models.RelCommonlyUsedWith,
			})
			linked++
		}
		if jaccard(tokens, titleTokens(peer.Title)) >= alternativeOverlap {
			rels = append(rels, models.Relationship{
				TargetID: peer.ID,
				Type:     models.RelAlternatives,
			})
		}
	}
	return rels
}

func titleTokens(title string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(title)) {
		field = strings.Trim(field, ".,:;()[]")
		if len(field) > 2 {
			tokens[field] = true
		}
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
